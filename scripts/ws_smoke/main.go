package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/pixelfold/pixchat-server/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	token := flag.String("token", "", "JWT obtained from /api/login")
	peer := flag.String("peer", "", "peer profile id to open")
	timeout := flag.Duration("timeout", 10*time.Second, "total timeout for the run")
	flag.Parse()

	if *token == "" {
		return fmt.Errorf("a -token is required; register or login over the REST API first")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr+"?token="+*token, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	if *peer != "" {
		payload, marshalErr := json.Marshal(proto.OpenData{Peer: *peer})
		if marshalErr != nil {
			return fmt.Errorf("marshal open: %w", marshalErr)
		}
		if err := wsjson.Write(ctx, conn, proto.Inbound{Type: proto.InboundTypeOpen, Data: payload}); err != nil {
			return fmt.Errorf("send open: %w", err)
		}

		typingPayload, marshalErr := json.Marshal(proto.TypingData{Peer: *peer})
		if marshalErr != nil {
			return fmt.Errorf("marshal typing: %w", marshalErr)
		}
		if err := wsjson.Write(ctx, conn, proto.Inbound{Type: proto.InboundTypeTyping, Data: typingPayload}); err != nil {
			return fmt.Errorf("send typing: %w", err)
		}
	}

	for {
		var outbound proto.Outbound
		if err := wsjson.Read(ctx, conn, &outbound); err != nil {
			return fmt.Errorf("read: %w", err)
		}

		fmt.Printf("Received outbound: type=%s", outbound.Type)
		if outbound.Event != "" {
			fmt.Printf(" event=%s", outbound.Event)
		}
		fmt.Println()

		if outbound.Error != nil {
			fmt.Printf("Error: %s (%s)\n", outbound.Error.Msg, outbound.Error.Code)
			continue
		}

		raw, err := json.Marshal(outbound.Data)
		if err != nil {
			return fmt.Errorf("marshal outbound data: %w", err)
		}

		switch outbound.Event {
		case proto.EventNameThread:
			var evt proto.EventThread
			if unmarshalErr := json.Unmarshal(raw, &evt); unmarshalErr != nil {
				fmt.Printf("Raw data: %s\n", string(raw))
				return fmt.Errorf("unmarshal thread: %w", unmarshalErr)
			}
			fmt.Printf("EventThread: peer=%s messages=%d\n", evt.Peer, len(evt.Messages))
			for _, m := range evt.Messages {
				fmt.Printf("  %s -> %s text=%q read=%v ts=%d\n", m.Sender, m.Recipient, m.Text, m.Read, m.TS)
			}
			return nil
		case proto.EventNameTyping:
			var evt proto.EventTyping
			if err := json.Unmarshal(raw, &evt); err == nil {
				fmt.Printf("Typing: user=%s is_typing=%v\n", evt.User, evt.IsTyping)
			}
		case proto.EventNameNotice:
			var evt proto.EventNotice
			if err := json.Unmarshal(raw, &evt); err == nil {
				fmt.Printf("Notice: from=%s preview=%q\n", evt.From, evt.Preview)
			}
		default:
			// keep looping for the thread snapshot
		}
	}
}
