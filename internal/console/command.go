package console

import (
	"errors"
	"fmt"
	"strings"
)

// commandKind is the closed set of console commands. Dispatch is a
// switch on the tag, never a lookup in a handler table.
type commandKind int

const (
	cmdHelp commandKind = iota
	cmdServerGet
	cmdServerSet
	cmdDomainList
	cmdDomainAdd
	cmdDomainDel
	cmdDomainClear
	cmdDomainSave
	cmdDomainLoad
)

type command struct {
	kind commandKind
	arg  string
}

var errUsage = errors.New("console: usage")

const usageText = `commands:
  help                   show this help
  server                 show the report endpoint
  server <url>           set the report endpoint ("-" clears it)
  domain list            list domains
  domain add <name>      define a domain with two clicks in the web view
  domain del <name>      delete a domain
  domain clear           delete all domains
  domain save <path>     save domains (.json / .yml / .yaml)
  domain load <path>     load domains (.json / .yml / .yaml)`

// parseCommand turns one input line into a tagged command. Blank
// lines parse to help with no side effects at the call site; unknown
// commands and malformed argument lists return a usage error.
func parseCommand(line string) (command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return command{}, fmt.Errorf("%w: empty command", errUsage)
	}

	switch fields[0] {
	case "help":
		if len(fields) != 1 {
			return command{}, fmt.Errorf("%w: help takes no arguments", errUsage)
		}
		return command{kind: cmdHelp}, nil

	case "server":
		switch len(fields) {
		case 1:
			return command{kind: cmdServerGet}, nil
		case 2:
			return command{kind: cmdServerSet, arg: fields[1]}, nil
		default:
			return command{}, fmt.Errorf("%w: server [url]", errUsage)
		}

	case "domain":
		if len(fields) < 2 {
			return command{}, fmt.Errorf("%w: domain list|add|del|clear|save|load", errUsage)
		}
		sub := fields[1]
		switch sub {
		case "list", "clear":
			if len(fields) != 2 {
				return command{}, fmt.Errorf("%w: domain %s takes no arguments", errUsage, sub)
			}
			if sub == "list" {
				return command{kind: cmdDomainList}, nil
			}
			return command{kind: cmdDomainClear}, nil

		case "add", "del", "save", "load":
			if len(fields) != 3 {
				return command{}, fmt.Errorf("%w: domain %s <arg>", errUsage, sub)
			}
			kind := map[string]commandKind{
				"add":  cmdDomainAdd,
				"del":  cmdDomainDel,
				"save": cmdDomainSave,
				"load": cmdDomainLoad,
			}[sub]
			return command{kind: kind, arg: fields[2]}, nil

		default:
			return command{}, fmt.Errorf("%w: unknown subcommand %q", errUsage, sub)
		}

	default:
		return command{}, fmt.Errorf("%w: unknown command %q", errUsage, fields[0])
	}
}
