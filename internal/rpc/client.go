package rpc

import (
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client wraps the gRPC connection to a session daemon.
type Client struct {
	conn    *grpc.ClientConn
	Session *SessionServiceClient
	Chat    *ChatServiceClient
}

// Dial connects to the daemon's Unix domain socket. The connection is lazy;
// the first call fails if no daemon is listening.
func Dial(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		CallOption(),
	)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}

	return &Client{
		conn:    conn,
		Session: NewSessionServiceClient(conn),
		Chat:    NewChatServiceClient(conn),
	}, nil
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
