package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dokzlo13/huebridge/internal/config"
	"github.com/dokzlo13/huebridge/internal/hue"
	"github.com/dokzlo13/huebridge/internal/lua"
)

// usageError reports wrong command-line arguments.
type usageError string

func (e usageError) Error() string { return string(e) }

var out io.Writer = os.Stdout

func run(ctx context.Context, cfg *config.Config, args []string) error {
	cmd, args := args[0], args[1:]

	if cmd == "token" {
		return runToken(ctx, cfg, args)
	}

	env, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer env.Close()
	b := env.bridge

	switch cmd {
	case "get":
		return cmdGet(ctx, b, args)
	case "set":
		return cmdSet(ctx, b, args)
	case "list":
		return cmdList(ctx, b, args)
	case "refresh":
		return cmdRefresh(ctx, b)
	case "create":
		return cmdCreate(ctx, b, args)
	case "delete":
		return cmdDelete(ctx, b, args)
	case "scene":
		if len(args) != 2 {
			return usageError("scene needs a group name and a scene name")
		}
		return b.RunScene(ctx, args[0], args[1])
	case "name":
		return cmdName(ctx, b, args)
	case "script":
		if len(args) != 1 {
			return usageError("script needs a file")
		}
		rt := lua.NewRuntime(b)
		defer rt.Close()
		return rt.RunFile(ctx, args[0])
	default:
		return usageError(fmt.Sprintf("unknown command %q", cmd))
	}
}

func kindArg(s string) (hue.Kind, error) {
	kind, err := hue.ParseKind(s)
	if err != nil {
		return "", usageError(err.Error())
	}
	return kind, nil
}

type readingJSON struct {
	ID    string `json:"id"`
	Value any    `json:"value,omitempty"`
	Error string `json:"error,omitempty"`
}

func cmdGet(ctx context.Context, b *hue.Bridge, args []string) error {
	if len(args) < 2 || len(args) > 3 {
		return usageError("get needs a kind, an identifier and optionally an attribute")
	}
	kind, err := kindArg(args[0])
	if err != nil {
		return err
	}
	attr := ""
	if len(args) == 3 {
		attr = args[2]
	}

	readings, err := b.Get(ctx, kind, hue.ParseIdentifier(args[1]), attr)
	if err != nil {
		return err
	}

	rows := make([]readingJSON, len(readings))
	var failed int
	for i, r := range readings {
		rows[i] = readingJSON{ID: r.ID, Value: r.Value}
		if r.Err != nil {
			rows[i].Error = r.Err.Error()
			failed++
		}
	}
	if err := printJSON(rows); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d reads failed", failed, len(readings))
	}
	return nil
}

func cmdSet(ctx context.Context, b *hue.Bridge, args []string) error {
	if len(args) < 3 {
		return usageError("set needs a kind, an identifier and attr=value pairs")
	}
	kind, err := kindArg(args[0])
	if err != nil {
		return err
	}
	payload, err := parseAssignments(args[2:])
	if err != nil {
		return err
	}

	res, err := b.SetRaw(ctx, kind, hue.ParseIdentifier(args[1]), payload)
	if err != nil {
		return err
	}
	return printResult(res)
}

func cmdList(ctx context.Context, b *hue.Bridge, args []string) error {
	if len(args) != 1 {
		return usageError("list needs a kind")
	}
	kind, err := kindArg(args[0])
	if err != nil {
		return err
	}

	ids, names, err := b.Names(ctx, kind)
	if err != nil {
		return err
	}
	for _, id := range ids {
		fmt.Fprintf(out, "%s\t%s\n", id, names[id])
	}
	return nil
}

func cmdRefresh(ctx context.Context, b *hue.Bridge) error {
	if err := b.Refresh(ctx); err != nil {
		return err
	}
	dir := b.Directory()
	for _, kind := range hue.Kinds() {
		at, _ := dir.LoadedAt(kind)
		fmt.Fprintf(out, "%s\t%d\t%s\n", kind.Collection(), dir.Count(kind), at.Format(time.RFC3339))
	}
	return nil
}

func cmdCreate(ctx context.Context, b *hue.Bridge, args []string) error {
	if len(args) == 0 {
		return usageError("create needs a resource type")
	}
	what, args := args[0], args[1:]

	var (
		id  string
		err error
	)
	switch what {
	case "group", "scene":
		if len(args) != 2 {
			return usageError(fmt.Sprintf("create %s needs a name and light ids", what))
		}
		lights, perr := parseIDs(args[1])
		if perr != nil {
			return perr
		}
		if what == "group" {
			id, err = b.CreateGroup(ctx, args[0], lights)
		} else {
			id, err = b.CreateScene(ctx, args[0], lights)
		}
	case "schedule":
		if len(args) < 4 {
			return usageError("create schedule needs a name, a time, a light and attr=value pairs")
		}
		payload, perr := parseAssignments(args[3:])
		if perr != nil {
			return perr
		}
		id, err = b.CreateSchedule(ctx, hue.ScheduleSpec{
			Name:    args[0],
			Time:    args[1],
			Target:  hue.ParseIdentifier(args[2]),
			Payload: payload,
		})
	case "sensor":
		if len(args) != 4 {
			return usageError("create sensor needs a name, a type, a model id and a unique id")
		}
		id, err = b.CreateSensor(ctx, hue.SensorSpec{
			Name:             args[0],
			Type:             args[1],
			ModelID:          args[2],
			UniqueID:         args[3],
			SwVersion:        "1.0",
			ManufacturerName: "huebridge",
		})
	default:
		return usageError(fmt.Sprintf("cannot create %q", what))
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(out, id)
	return nil
}

func cmdDelete(ctx context.Context, b *hue.Bridge, args []string) error {
	if len(args) != 2 {
		return usageError("delete needs a kind and an identifier")
	}
	kind, err := kindArg(args[0])
	if err != nil {
		return err
	}
	ident := hue.ParseIdentifier(args[1])

	switch kind {
	case hue.KindGroup:
		return b.DeleteGroup(ctx, ident)
	case hue.KindSchedule:
		return b.DeleteSchedule(ctx, ident)
	case hue.KindScene:
		return b.DeleteScene(ctx, ident)
	case hue.KindSensor:
		return b.DeleteSensor(ctx, ident)
	default:
		return usageError(fmt.Sprintf("cannot delete a %s", kind))
	}
}

func cmdName(ctx context.Context, b *hue.Bridge, args []string) error {
	switch len(args) {
	case 0:
		name, err := b.Name(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, name)
		return nil
	case 1:
		return b.SetName(ctx, args[0])
	default:
		return usageError("name takes at most one argument")
	}
}

// parseAssignments reads attr=value pairs. Values are JSON when they parse as JSON
// (numbers, booleans, arrays) and plain strings otherwise.
func parseAssignments(args []string) (hue.Payload, error) {
	p := make(hue.Payload, len(args))
	for _, arg := range args {
		key, raw, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, usageError(fmt.Sprintf("expected attr=value, got %q", arg))
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		p[key] = v
	}
	return p, nil
}

// parseIDs reads a comma-separated list of numeric ids.
func parseIDs(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	ids := make([]int, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, usageError(fmt.Sprintf("invalid light id %q", part))
		}
		ids = append(ids, n)
	}
	return ids, nil
}

type outcomeJSON struct {
	ID      string         `json:"id"`
	Success map[string]any `json:"success,omitempty"`
	Error   string         `json:"error,omitempty"`
}

func printResult(res hue.Result) error {
	rows := make([]outcomeJSON, len(res.Outcomes))
	for i, o := range res.Outcomes {
		rows[i] = outcomeJSON{ID: o.ID, Success: o.Success}
		if o.Err != nil {
			rows[i].Error = o.Err.Error()
		}
	}
	if err := printJSON(rows); err != nil {
		return err
	}
	if failed := res.Failed(); len(failed) > 0 {
		return fmt.Errorf("%d of %d writes failed (dispatch %s)", len(failed), len(res.Outcomes), res.CorrelationID)
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
