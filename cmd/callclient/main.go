// Command callclient is a headless signaling client: it logs in, opens
// the signaling channel, and drives calls from stdin. Useful for testing
// the relay and another client without a browser.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/LightningMCquen/Fullstack-chat-VC-app/internal/call"
	"github.com/LightningMCquen/Fullstack-chat-VC-app/internal/client"
)

func main() {
	server := flag.String("server", "http://localhost:8080", "signaling server base URL")
	username := flag.String("user", "", "username to sign in as")
	name := flag.String("name", "", "display name (defaults to username)")
	stun := flag.String("stun", "stun:stun.l.google.com:19302", "comma-separated STUN server URLs")
	flag.Parse()

	if *username == "" {
		log.Fatal("missing -user")
	}
	displayName := *name
	if displayName == "" {
		displayName = *username
	}

	token, err := login(*server, *username, displayName)
	if err != nil {
		log.Fatalf("Login failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	channel, err := client.Dial(ctx, *server, token)
	cancel()
	if err != nil {
		log.Fatalf("Failed to open signaling channel: %v", err)
	}
	defer channel.Close()

	mgr := call.NewManager(call.Config{
		SelfID:      *username,
		SelfName:    displayName,
		Constraints: call.Constraints{Audio: true, Video: true, HighQuality: true},
	}, channel, call.NoCapture{}, call.NewPionFactory(strings.Split(*stun, ",")))
	defer mgr.Close()

	mgr.OnIncoming(func(ic call.IncomingCall) {
		fmt.Printf("\n*** Incoming call from %s (%s): 'accept' or 'reject'\n> ", ic.DisplayName, ic.From)
	})
	mgr.OnNotice(func(n call.Notice) {
		fmt.Printf("\n*** %s\n> ", n.Text)
	})
	mgr.OnPresence(func(online []string) {
		fmt.Printf("\n*** Online: %s\n> ", strings.Join(online, ", "))
	})

	go func() {
		for env := range channel.Receive() {
			mgr.Dispatch(env)
		}
		if err := channel.Err(); err != nil {
			fmt.Printf("\n*** %v\n", err)
			mgr.ChannelLost()
			os.Exit(1)
		}
	}()

	fmt.Println("Commands: call <user> | accept | reject | hangup | who | quit")
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			fmt.Print("> ")
			continue
		}
		switch fields[0] {
		case "call":
			if len(fields) < 2 {
				fmt.Println("usage: call <user>")
				break
			}
			if _, err := mgr.Invite(fields[1], fields[1]); err != nil {
				fmt.Printf("cannot call: %v\n", err)
			}
		case "accept":
			if s := mgr.Active(); s != nil {
				s.Accept()
			}
		case "reject":
			if s := mgr.Active(); s != nil {
				s.Reject()
			}
		case "hangup":
			if s := mgr.Active(); s != nil {
				s.Hangup()
			}
		case "who":
			fmt.Printf("online: %s\n", strings.Join(mgr.Online(), ", "))
			if s := mgr.Active(); s != nil {
				fmt.Printf("call with %s: %s\n", s.RemoteName(), s.State())
			}
		case "quit":
			return
		default:
			fmt.Println("unknown command")
		}
		fmt.Print("> ")
	}
}

func login(server, username, displayName string) (string, error) {
	body, _ := json.Marshal(map[string]string{
		"username":    username,
		"password":    "demo",
		"displayName": displayName,
	})
	resp, err := http.Post(server+"/api/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("login returned %s", resp.Status)
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.Token, nil
}
