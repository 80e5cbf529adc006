package control

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"reminderd/internal/reminder"
)

var ErrUsage = errors.New("usage")

// Op is what a parsed chat command asks for.
type Op int

const (
	OpApply Op = iota + 1
	OpStatus
	OpPermissions
	OpHelp
)

// Action is the result of parsing one chat command.
type Action struct {
	Op  Op
	Cmd reminder.Command
}

type commandDef struct {
	name  string
	usage string
	desc  string
	parse func(args []string, cur reminder.Config) (Action, error)
}

var commands = []commandDef{
	{"start", "/start [minutes]", "Start reminders", parseStart},
	{"stop", "/stop", "Stop reminders", apply(reminder.CmdStop)},
	{"pause", "/pause", "Pause reminders", apply(reminder.CmdPause)},
	{"resume", "/resume", "Resume reminders", apply(reminder.CmdResume)},
	{"interval", "/interval <minutes>", "Change the interval", parseInterval},
	{"quiet", "/quiet <start> <end> | off", "Set quiet hours", parseQuiet},
	{"vibration", "/vibration on|off", "Toggle vibration", parseVibration},
	{"sound", "/sound <ref>|default", "Choose the alert sound", parseSound},
	{"status", "/status", "Show the reminder status", op(OpStatus)},
	{"permissions", "/permissions", "Request exact timing and sleep exemption", op(OpPermissions)},
	{"help", "/help", "List commands", op(OpHelp)},
}

func lookup(name string) (commandDef, bool) {
	for _, s := range commands {
		if s.name == name {
			return s, true
		}
	}
	return commandDef{}, false
}

// Parse maps a chat command line to an Action. cur provides the settings a
// partial update (like /vibration) leaves unchanged.
func Parse(text string, cur reminder.Config) (Action, error) {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return Action{}, fmt.Errorf("%w: not a command", ErrUsage)
	}
	name := strings.ToLower(strings.TrimPrefix(fields[0], "/"))
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	s, ok := lookup(name)
	if !ok {
		return Action{}, fmt.Errorf("%w: unknown command /%s, try /help", ErrUsage, name)
	}
	act, err := s.parse(fields[1:], cur)
	if err != nil {
		return Action{}, fmt.Errorf("%w: %s", err, s.usage)
	}
	return act, nil
}

func apply(k reminder.CommandKind) func([]string, reminder.Config) (Action, error) {
	return func([]string, reminder.Config) (Action, error) {
		return Action{Op: OpApply, Cmd: reminder.Command{Kind: k}}, nil
	}
}

func op(o Op) func([]string, reminder.Config) (Action, error) {
	return func([]string, reminder.Config) (Action, error) { return Action{Op: o}, nil }
}

func parseStart(args []string, cur reminder.Config) (Action, error) {
	n := cur.IntervalMinutes
	if len(args) > 0 {
		v, err := minutes(args[0])
		if err != nil {
			return Action{}, err
		}
		n = v
	}
	return Action{Op: OpApply, Cmd: reminder.Command{Kind: reminder.CmdStart, IntervalMinutes: n}}, nil
}

func parseInterval(args []string, _ reminder.Config) (Action, error) {
	if len(args) != 1 {
		return Action{}, ErrUsage
	}
	n, err := minutes(args[0])
	if err != nil {
		return Action{}, err
	}
	return Action{Op: OpApply, Cmd: reminder.Command{Kind: reminder.CmdUpdateInterval, IntervalMinutes: n}}, nil
}

func minutes(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSuffix(strings.ToLower(s), "m"))
	if err != nil {
		return 0, ErrUsage
	}
	if err := reminder.ValidateInterval(n); err != nil {
		return 0, err
	}
	return n, nil
}

func parseQuiet(args []string, cur reminder.Config) (Action, error) {
	dh := cur.DisabledHours
	switch {
	case len(args) == 1 && isOff(args[0]):
		dh.Enabled = false
	case len(args) == 2:
		start, err1 := strconv.Atoi(args[0])
		end, err2 := strconv.Atoi(args[1])
		if err1 != nil || err2 != nil {
			return Action{}, ErrUsage
		}
		dh = reminder.DisabledHours{Enabled: true, StartHour: start, EndHour: end}
		if err := dh.Validate(); err != nil {
			return Action{}, err
		}
	default:
		return Action{}, ErrUsage
	}
	return Action{Op: OpApply, Cmd: reminder.Command{Kind: reminder.CmdUpdateDisabledHours, DisabledHours: dh}}, nil
}

func parseVibration(args []string, cur reminder.Config) (Action, error) {
	if len(args) != 1 {
		return Action{}, ErrUsage
	}
	p := cur.Alert
	switch {
	case isOn(args[0]):
		p.VibrationEnabled = true
	case isOff(args[0]):
		p.VibrationEnabled = false
	default:
		return Action{}, ErrUsage
	}
	return Action{Op: OpApply, Cmd: reminder.Command{Kind: reminder.CmdUpdateAlertProfile, Alert: p}}, nil
}

func parseSound(args []string, cur reminder.Config) (Action, error) {
	if len(args) == 0 {
		return Action{}, ErrUsage
	}
	p := cur.Alert
	p.SoundRef = strings.Join(args, " ")
	return Action{Op: OpApply, Cmd: reminder.Command{Kind: reminder.CmdUpdateAlertProfile, Alert: p}}, nil
}

func isOn(s string) bool {
	switch strings.ToLower(s) {
	case "on", "true", "1", "yes":
		return true
	}
	return false
}

func isOff(s string) bool {
	switch strings.ToLower(s) {
	case "off", "false", "0", "no":
		return true
	}
	return false
}
