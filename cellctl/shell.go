package main

import (
	"context"
	"fmt"
	"log"

	"github.com/abiosoft/ishell"
	"go.uber.org/zap"

	"github.com/itohio/cellbms/pkg/bus"
	"github.com/itohio/cellbms/pkg/config"
	"github.com/itohio/cellbms/pkg/protocol"
)

const (
	shellKey          = "$shell"
	unconnectedPrompt = "[none] > "
)

// Shell is the interactive controller.
type Shell struct {
	Interactive bool

	Shell *ishell.Shell
	cfg   *config.Config
	log   *zap.Logger

	link   bus.Link
	port   string
	client *protocol.Client
	target protocol.Address
}

// NewShell creates a shell with every command registered.
func NewShell(cfg *config.Config, logger *zap.Logger, interactive bool) *Shell {
	s := &Shell{
		Interactive: interactive,
		Shell:       ishell.New(),
		cfg:         cfg,
		log:         logger,
		target:      protocol.NewAddress(0, 0),
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(unconnectedPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// shellFrom gets the Shell from an ishell context.
func shellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// mustBeConnected wraps a command that needs a bus.
func mustBeConnected(fn func(s *Shell, c *ishell.Context)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		s := shellFrom(c)
		if s.client == nil {
			c.Err(fmt.Errorf("not connected"))
			return
		}
		fn(s, c)
	}
}

// Connect opens port and talks to the bus through it.
func (s *Shell) Connect(port string) error {
	link := bus.NewSerial(port, s.cfg.Serial.Baud, bus.DefaultBufferSize, s.log.Named("bus"))
	if err := link.Connect(); err != nil {
		return err
	}
	s.attach(link, port)
	return nil
}

func (s *Shell) attach(link bus.Link, name string) {
	s.Disconnect()
	s.link = link
	s.port = name
	s.client = protocol.NewClient(link, s.cfg.Protocol.Timeout, s.log.Named("client"))
	s.updatePrompt()
}

// Disconnect closes the current bus.
func (s *Shell) Disconnect() {
	if s.link == nil {
		return
	}
	if err := s.link.Close(); err != nil {
		s.log.Warn("close failed", zap.Error(err))
	}
	s.link = nil
	s.client = nil
	s.port = ""
	s.Shell.SetPrompt(unconnectedPrompt)
}

func (s *Shell) updatePrompt() {
	if s.link == nil {
		return
	}
	s.Shell.SetPrompt(fmt.Sprintf("[%s %s] > ", s.port, s.target))
}

// requestContext returns a context bounded by the reply timeout.
func (s *Shell) requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 2*s.cfg.Protocol.Timeout)
}

// Run runs one command from args, or the interactive shell.
func (s *Shell) Run(args ...string) {
	defer s.Disconnect()

	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}
