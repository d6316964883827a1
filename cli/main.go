// Package main provides a terminal chat client for the spike server.
package main

import (
	"bufio"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	flag "github.com/spf13/pflag"
)

// command is one parsed line of user input.
type command struct {
	name string
	arg  string
	body string
}

// parseCommand splits input into a command. "@bob hi" sends hi to bob,
// "/name arg" runs a command; anything else is sent to the default peer.
func parseCommand(input string) (command, error) {
	input = strings.TrimSpace(input)
	switch {
	case input == "":
		return command{}, errors.New("empty input")

	case strings.HasPrefix(input, "@"):
		to, body, _ := strings.Cut(input[1:], " ")
		body = strings.TrimSpace(body)
		if to == "" || body == "" {
			return command{}, errors.New("usage: @user message")
		}
		return command{name: "send", arg: to, body: body}, nil

	case strings.HasPrefix(input, "/"):
		name, arg, _ := strings.Cut(input[1:], " ")
		arg = strings.TrimSpace(arg)
		switch name {
		case "quit", "who", "past", "help":
			return command{name: name}, nil
		case "history", "search", "to":
			if arg == "" {
				return command{}, fmt.Errorf("usage: /%s <user>", name)
			}
			return command{name: name, arg: arg}, nil
		}
		return command{}, fmt.Errorf("unknown command: /%s", name)
	}
	return command{name: "send", body: input}, nil
}

func formatOnline(peers []string) string {
	if len(peers) == 0 {
		return "nobody else is online"
	}
	return "online: " + strings.Join(peers, ", ")
}

func formatMessage(from, body string, at time.Time) string {
	return fmt.Sprintf("[%s] %s: %s", at.Local().Format("15:04"), from, body)
}

const help = `Commands:
  @user message   send a message to user
  /to user        set the default recipient for plain lines
  /who            list online users
  /history user   show the conversation with user
  /past           list users you have talked to
  /search text    find registered users
  /quit           exit`

func main() {
	addr := flag.String("addr", "ws://localhost:3000/ws", "WebSocket server address")
	api := flag.String("api", "http://localhost:3000", "HTTP API base URL")
	username := flag.StringP("user", "u", "", "username")
	password := flag.StringP("password", "p", "", "password")
	flag.Parse()

	log.SetFlags(log.Ltime)

	if *username == "" || *password == "" {
		log.Fatal("--user and --password are required")
	}

	client := NewAPI(*api)
	exists, err := client.UserExists(*username)
	if err != nil {
		log.Fatalf("Failed to check user: %v", err)
	}
	if exists {
		err = client.Login(*username, *password)
	} else {
		fmt.Printf("Registering %s...\n", *username)
		err = client.Register(*username, *password)
	}
	if err != nil {
		log.Fatalf("Authentication failed: %v", err)
	}

	fmt.Printf("Connecting to %s...\n", *addr)
	chat, err := Dial(*addr, *username)
	if err != nil {
		log.Fatalf("Failed to join: %v", err)
	}
	defer chat.Close()

	fmt.Printf("Joined as %s. %s\n", *username, formatOnline(chat.Peers()))
	fmt.Println(help)

	go func() {
		for ev := range chat.Events() {
			fmt.Printf("\n%s\n> ", ev.Text)
		}
		fmt.Println("\nDisconnected")
		os.Exit(0)
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	go func() {
		<-interrupt
		fmt.Println("\nInterrupted")
		chat.Close()
		os.Exit(0)
	}()

	var peer string
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		if strings.TrimSpace(scanner.Text()) == "" {
			continue
		}

		cmd, err := parseCommand(scanner.Text())
		if err != nil {
			fmt.Println(err)
			continue
		}

		switch cmd.name {
		case "quit":
			fmt.Println("Bye!")
			return
		case "help":
			fmt.Println(help)
		case "who":
			fmt.Println(formatOnline(chat.Peers()))
		case "to":
			peer = cmd.arg
			fmt.Printf("Talking to %s\n", peer)
		case "send":
			to := cmd.arg
			if to == "" {
				to = peer
			}
			if to == "" {
				fmt.Println("no recipient, use @user message or /to user")
				continue
			}
			if err := chat.Send(to, cmd.body); err != nil {
				log.Printf("Send error: %v", err)
			}
		case "history":
			messages, err := client.History(*username, cmd.arg)
			if err != nil {
				log.Printf("History error: %v", err)
				continue
			}
			for _, m := range messages {
				fmt.Println(formatMessage(m.From, m.Body, m.SentAt))
			}
		case "past":
			users, err := client.PastUsers(*username)
			if err != nil {
				log.Printf("Past users error: %v", err)
				continue
			}
			fmt.Println(strings.Join(users, ", "))
		case "search":
			users, err := client.Search(*username, cmd.arg)
			if err != nil {
				log.Printf("Search error: %v", err)
				continue
			}
			fmt.Println(strings.Join(users, ", "))
		}
	}
}
