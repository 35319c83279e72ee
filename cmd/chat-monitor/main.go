package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "chat-monitor",
	Short: "Log in and print every realtime event for a user",
	Long: `chat-monitor logs in over the REST API, opens the WebSocket channel with
the returned token, joins, and prints each event it receives.

With --to and --say it also sends one message after joining.`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	f := rootCmd.Flags()
	f.String("server", "http://127.0.0.1:8080", "SocialHub base URL")
	f.StringP("username", "u", "", "Username")
	f.StringP("password", "p", "", "Password")
	f.String("to", "", "User id to send a message to")
	f.String("say", "", "Message content to send")
	_ = rootCmd.MarkFlagRequired("username")
	_ = rootCmd.MarkFlagRequired("password")
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type frame struct {
	Event string          `json:"event"`
	Ack   string          `json:"ack,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func run(cmd *cobra.Command, args []string) error {
	server, _ := cmd.Flags().GetString("server")
	username, _ := cmd.Flags().GetString("username")
	password, _ := cmd.Flags().GetString("password")
	to, _ := cmd.Flags().GetString("to")
	say, _ := cmd.Flags().GetString("say")

	token, err := login(server, username, password)
	if err != nil {
		return err
	}

	wsURL, err := socketURL(server, token)
	if err != nil {
		return err
	}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", wsURL, err)
	}
	defer conn.Close()

	fmt.Println("Connected to", strings.SplitN(wsURL, "?", 2)[0], "as", username)

	if err := conn.WriteJSON(frame{Event: "join", Ack: "join"}); err != nil {
		return err
	}
	if to != "" && say != "" {
		data, _ := json.Marshal(map[string]string{"receiverId": to, "content": say})
		if err := conn.WriteJSON(frame{Event: "sendMessage", Ack: "send", Data: data}); err != nil {
			return err
		}
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	go func() {
		<-interrupt
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		conn.Close()
	}()

	fmt.Println("Waiting for events...")
	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			fmt.Println("Disconnected.")
			return nil
		}
		label := f.Event
		if f.Ack != "" {
			label += "(" + f.Ack + ")"
		}
		fmt.Printf("%s %-22s %s\n", time.Now().Format("15:04:05"), label, f.Data)
	}
}

func login(server, username, password string) (string, error) {
	body, _ := json.Marshal(map[string]string{"username": username, "password": password})
	resp, err := http.Post(strings.TrimRight(server, "/")+"/api/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return "", fmt.Errorf("decode login response: %w", err)
	}
	if !env.Success {
		return "", fmt.Errorf("login failed (%d): %s", resp.StatusCode, env.Message)
	}
	var data struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return "", err
	}
	return data.Token, nil
}

// socketURL turns the REST base URL into the /ws endpoint URL.
func socketURL(server, token string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	u.RawQuery = url.Values{"token": {token}}.Encode()
	return u.String(), nil
}
