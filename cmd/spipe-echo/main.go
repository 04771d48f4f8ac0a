// Command spipe-echo is a small demo client/server built directly on
// transport/ipc, in the spirit of docker-compose's cobra-based command
// tree: a root command with "serve" and "dial" subcommands, flags
// parsed with pflag.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nngo/spipe/message"
	"github.com/nngo/spipe/transport/ipc"
)

const defaultProto = 0x0100

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	log := logrus.New()

	root := &cobra.Command{
		Use:   "spipe-echo",
		Short: "Exercise the ipc transport with a trivial echo protocol",
	}

	var addr string
	root.PersistentFlags().StringVar(&addr, "addr", "ipc:///tmp/spipe-echo.sock", "ipc:// address to bind or dial")

	root.AddCommand(newServeCmd(log, &addr))
	root.AddCommand(newDialCmd(log, &addr))
	return root
}

func newServeCmd(log *logrus.Logger, addr *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Accept connections and echo every message received",
		RunE: func(cmd *cobra.Command, args []string) error {
			sock := ipc.NewStaticSocket(defaultProto, 0)
			ep, err := ipc.InitEndpointWithLogger(*addr, sock, ipc.ModeListen, logEntry(log, "serve"))
			if err != nil {
				return err
			}
			defer ep.Close()

			if err := ep.Bind(); err != nil {
				return err
			}
			log.WithField("addr", *addr).Info("spipe-echo: listening")

			for {
				p, err := ep.Accept(cmd.Context())
				if err != nil {
					return err
				}
				go serveConn(log, p)
			}
		},
	}
}

func serveConn(log *logrus.Logger, p *ipc.Pipe) {
	defer p.Close()
	ctx := context.Background()
	for {
		msg, err := p.Recv(ctx)
		if err != nil {
			log.WithError(err).Debug("spipe-echo: connection closed")
			return
		}
		if _, err := p.Send(ctx, msg); err != nil {
			log.WithError(err).Warn("spipe-echo: echo failed")
			return
		}
	}
}

func newDialCmd(log *logrus.Logger, addr *string) *cobra.Command {
	var text string
	cmd := &cobra.Command{
		Use:   "dial",
		Short: "Connect, send one message, print the echoed reply and round-trip time",
		RunE: func(cmd *cobra.Command, args []string) error {
			sock := ipc.NewStaticSocket(defaultProto, 0)
			ep, err := ipc.InitEndpointWithLogger(*addr, sock, ipc.ModeDial, logEntry(log, "dial"))
			if err != nil {
				return err
			}
			defer ep.Close()

			p, err := ep.Dial(cmd.Context())
			if err != nil {
				return err
			}
			defer p.Close()

			start := time.Now()
			msg := message.NewWithBody([]byte(text))
			if _, err := p.Send(cmd.Context(), msg); err != nil {
				return err
			}
			reply, err := p.Recv(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("echoed %q in %s\n", reply.Body, time.Since(start))
			return nil
		},
	}
	cmd.Flags().StringVar(&text, "message", "hello", "message body to send")
	return cmd
}

func logEntry(log *logrus.Logger, component string) *logrus.Entry {
	return log.WithField("cmd", component)
}
