// Package broker maintains the live connection between the notification client and
// the message broker.
//
// The broker is a NATS server reached over WebSocket; the wire protocol is handled by
// the nats.go client with its own reconnect logic switched off. A Conn owns exactly one
// nats connection at a time:
//   - Connect dials and, by default, keeps retrying until the first connection
//     succeeds or ConnectTimeout elapses. Rejected credentials are not retried.
//   - once established, a dropped connection is replaced transparently: the Conn backs
//     off, redials and re-registers every active subscription on the new connection
//   - subscriptions are unbounded, ordered message streams that end only when the Conn
//     is closed, the subscription is removed, or reconnection gives up
//   - DisconnectHandler and ReconnectHandler run in order on a dedicated goroutine
//
// Example usage:
//
//	conn, err := broker.Connect(ctx, "wss://tasks.example.com/ws", broker.Identity{
//		Token: token,
//		Name:  "ui",
//	}, broker.DefaultOptions())
//	if err != nil {
//		return err // *broker.ConnectionError
//	}
//	defer conn.Close()
//
//	sub, err := conn.Subscribe("task.42.>")
//	if err != nil {
//		return err
//	}
//	for msg, err := range sub.Messages(ctx) {
//		if err != nil {
//			return err // terminal: the stream will not produce more messages
//		}
//		handle(msg)
//	}
package broker
