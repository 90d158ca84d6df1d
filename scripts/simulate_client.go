// Command simulate_client exercises the whole login-and-chat path against a
// locally running stack: register, login through the gateway, attach to the
// assigned chat server and exchange a message with a peer uid.
//
//	go run scripts/simulate_client.go -gateway http://localhost:8090 -user alice -pass secret -peer 42
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/chatroom/backend/internal/protocol"
)

type creds struct {
	Username string `json:"username"`
	Passcode string `json:"passcode"`
}

type loginResp struct {
	Token      string `json:"token"`
	ServerAddr string `json:"server_addr"`
	UID        int64  `json:"uid"`
}

func main() {
	gatewayURL := flag.String("gateway", "http://localhost:8090", "gateway base URL")
	username := flag.String("user", "alice", "username")
	passcode := flag.String("pass", "secret", "password")
	peer := flag.Uint64("peer", 0, "peer uid to message, 0 to only listen")
	flag.Parse()

	body, _ := json.Marshal(creds{Username: *username, Passcode: *passcode})

	// Registration may 403 if the account exists already; that is fine.
	resp, err := http.Post(*gatewayURL+"/register", "application/json", bytes.NewReader(body))
	if err != nil {
		log.Fatalf("register request failed: %v", err)
	}
	resp.Body.Close()
	fmt.Printf("register: HTTP %d\n", resp.StatusCode)

	resp, err = http.Post(*gatewayURL+"/login", "application/json", bytes.NewReader(body))
	if err != nil {
		log.Fatalf("login request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Fatalf("login rejected: HTTP %d", resp.StatusCode)
	}
	var login loginResp
	if err := json.NewDecoder(resp.Body).Decode(&login); err != nil {
		log.Fatalf("login response unreadable: %v", err)
	}
	fmt.Printf("login ok: uid=%d server=%s\n", login.UID, login.ServerAddr)

	conn, err := net.Dial("tcp", login.ServerAddr)
	if err != nil {
		log.Fatalf("chat server dial failed: %v", err)
	}
	defer conn.Close()

	verify := protocol.EncodeVerify(uint64(login.UID), login.Token)
	if _, err := conn.Write(protocol.EncodeFrame(protocol.TagVerify, verify)); err != nil {
		log.Fatalf("verify send failed: %v", err)
	}
	frame, err := protocol.ReadFrame(conn)
	if err != nil {
		log.Fatalf("handshake failed: %v", err)
	}
	if frame.Tag != protocol.TagVerifyDone {
		log.Fatalf("unexpected handshake reply: %s", frame.Tag)
	}
	fmt.Printf("handshake complete: %s\n", frame.Payload)

	if *peer != 0 {
		msg := fmt.Sprintf("hello from %s at %s", *username, time.Now().Format(time.RFC3339))
		payload := protocol.ChatPayload(*peer, []byte(msg))
		if _, err := conn.Write(protocol.EncodeFrame(protocol.TagChatMsg, payload)); err != nil {
			log.Fatalf("chat send failed: %v", err)
		}
		fmt.Printf("sent %q to uid %d\n", msg, *peer)
	}

	fmt.Println("listening for messages, Ctrl-C to quit")
	for {
		frame, err := protocol.ReadFrame(conn)
		if err != nil {
			log.Fatalf("connection lost: %v", err)
		}
		if frame.Tag != protocol.TagChatMsgToCli {
			fmt.Printf("frame: %s (%d bytes)\n", frame.Tag, len(frame.Payload))
			continue
		}
		from, content, err := protocol.SplitChatPayload(frame.Payload)
		if err != nil {
			log.Printf("malformed chat frame: %v", err)
			continue
		}
		fmt.Printf("[%d] %s\n", from, content)
	}
}
