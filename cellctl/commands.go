package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/abiosoft/ishell"

	"github.com/itohio/cellbms/pkg/bus"
	"github.com/itohio/cellbms/pkg/protocol"
)

var commands = []*ishell.Cmd{
	&portsCmd,
	&connectCmd,
	&disconnectCmd,
	&targetCmd,
	&pingCmd,
	&scanCmd,
	&voltageCmd,
	&temperatureCmd,
	&identifyCmd,
	&badPacketsCmd,
	&settingsCmd,
	&setCmd,
	&identityCmd,
}

var (
	portsCmd = ishell.Cmd{
		Name: "ports",
		Help: "list serial ports",
		Func: func(c *ishell.Context) {
			ports, err := bus.Ports()
			if err != nil {
				c.Err(err)
				return
			}
			for _, p := range ports {
				c.Println(p.Name)
			}
		},
	}

	connectCmd = ishell.Cmd{
		Name: "connect",
		Help: "[PORT]",
		Func: func(c *ishell.Context) {
			s := shellFrom(c)
			port := s.cfg.Serial.Port
			if len(c.Args) > 0 {
				port = c.Args[0]
			}
			if err := s.Connect(port); err != nil {
				c.Err(err)
			}
		},
	}

	disconnectCmd = ishell.Cmd{
		Name: "disconnect",
		Func: func(c *ishell.Context) {
			shellFrom(c).Disconnect()
		},
	}

	targetCmd = ishell.Cmd{
		Name:    "target",
		Aliases: []string{"t"},
		Help:    "BANK CELL | broadcast BANK",
		Func: func(c *ishell.Context) {
			s := shellFrom(c)
			if len(c.Args) == 0 {
				c.Println(s.target)
				return
			}
			addr, err := parseTarget(c.Args)
			if err != nil {
				c.Err(err)
				return
			}
			s.target = addr
			s.updatePrompt()
		},
	}

	pingCmd = ishell.Cmd{
		Name: "ping",
		Func: mustBeConnected(func(s *Shell, c *ishell.Context) {
			ctx, cancel := s.requestContext()
			defer cancel()
			status, err := s.client.Ping(ctx, s.target)
			if err != nil {
				c.Err(err)
				return
			}
			c.Printf("%s: %s\n", s.target, status)
		}),
	}

	scanCmd = ishell.Cmd{
		Name: "scan",
		Help: "[BANK] ping every cell of a bank",
		Func: mustBeConnected(func(s *Shell, c *ishell.Context) {
			bank := s.target.Bank()
			if len(c.Args) > 0 {
				v, err := parseByte(c.Args[0])
				if err != nil {
					c.Err(err)
					return
				}
				bank = v
			}
			found := 0
			for id := 0; id < 16; id++ {
				addr := protocol.NewAddress(bank, uint8(id))
				ctx, cancel := s.requestContext()
				status, err := s.client.Ping(ctx, addr)
				cancel()
				if err != nil {
					continue
				}
				found++
				c.Printf("%s: %s\n", addr, status)
			}
			c.Printf("%d modules answered\n", found)
		}),
	}

	voltageCmd = ishell.Cmd{
		Name:    "voltage",
		Aliases: []string{"v"},
		Func: mustBeConnected(func(s *Shell, c *ishell.Context) {
			ctx, cancel := s.requestContext()
			defer cancel()
			mv, status, err := s.client.Voltage(ctx, s.target)
			if err != nil {
				c.Err(err)
				return
			}
			c.Printf("%d mV (%s)\n", mv, status)
		}),
	}

	temperatureCmd = ishell.Cmd{
		Name:    "temperature",
		Aliases: []string{"temp"},
		Func: mustBeConnected(func(s *Shell, c *ishell.Context) {
			ctx, cancel := s.requestContext()
			defer cancel()
			onboard, external, err := s.client.Temperature(ctx, s.target)
			if err != nil {
				c.Err(err)
				return
			}
			c.Printf("onboard %s, external %s\n", formatDeci(onboard), formatDeci(external))
		}),
	}

	identifyCmd = ishell.Cmd{
		Name: "identify",
		Help: "toggle the identify indicator",
		Func: mustBeConnected(func(s *Shell, c *ishell.Context) {
			ctx, cancel := s.requestContext()
			defer cancel()
			on, err := s.client.Identify(ctx, s.target)
			if err != nil {
				c.Err(err)
				return
			}
			c.Printf("identify %t\n", on)
		}),
	}

	badPacketsCmd = ishell.Cmd{
		Name: "bad",
		Help: "rejected frame counter",
		Func: mustBeConnected(func(s *Shell, c *ishell.Context) {
			ctx, cancel := s.requestContext()
			defer cancel()
			n, err := s.client.BadPackets(ctx, s.target)
			if err != nil {
				c.Err(err)
				return
			}
			c.Println(n)
		}),
	}

	settingsCmd = ishell.Cmd{
		Name: "settings",
		Func: mustBeConnected(func(s *Shell, c *ishell.Context) {
			ctx, cancel := s.requestContext()
			defer cancel()
			settings, err := s.client.ReadSettings(ctx, s.target)
			if err != nil {
				c.Err(err)
				return
			}
			c.Print(formatSettings(settings))
		}),
	}

	setCmd = ishell.Cmd{
		Name: "set",
		Help: "NAME VALUE, names: " + strings.Join(settingNames(), " "),
		Func: mustBeConnected(func(s *Shell, c *ishell.Context) {
			if len(c.Args) != 2 {
				c.Err(fmt.Errorf("NAME and VALUE required"))
				return
			}
			ctx, cancel := s.requestContext()
			defer cancel()
			if err := s.set(ctx, c.Args[0], c.Args[1]); err != nil {
				c.Err(err)
				return
			}
			c.Println("OK")
		}),
	}

	identityCmd = ishell.Cmd{
		Name: "identity",
		Help: "[BANK CELL] read or assign the target's identity",
		Func: mustBeConnected(func(s *Shell, c *ishell.Context) {
			ctx, cancel := s.requestContext()
			defer cancel()
			if len(c.Args) == 0 {
				bank, id, err := s.client.Identity(ctx, s.target)
				if err != nil {
					c.Err(err)
					return
				}
				c.Printf("bank %d cell %d\n", bank, id)
				return
			}
			if len(c.Args) != 2 {
				c.Err(fmt.Errorf("BANK and CELL required"))
				return
			}
			bank, err := parseByte(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			id, err := parseByte(c.Args[1])
			if err != nil {
				c.Err(err)
				return
			}
			if err := s.client.SetIdentity(ctx, s.target, bank, id); err != nil {
				c.Err(err)
				return
			}
			if !s.target.Broadcast() {
				s.target = protocol.NewAddress(bank, id)
				s.updatePrompt()
			}
			c.Println("OK")
		}),
	}
)

// set changes one named setting. Flags need the current value, everything
// else is written with the other slots kept.
func (s *Shell) set(ctx context.Context, name, value string) error {
	var current protocol.Settings
	if _, ok := flagSettings[name]; ok {
		var err error
		if current, err = s.client.ReadSettings(ctx, s.target); err != nil {
			return err
		}
	}
	write, err := settingWrite(current, name, value)
	if err != nil {
		return err
	}
	_, err = s.client.WriteSettings(ctx, s.target, write)
	return err
}
