// Package command implements the external command surface (spec.md §6.3):
// a pure Dispatch that maps chat-style commands onto Registry and Balance
// Monitor operations, plus the OTP/CAPTCHA broadcast-detection rule.
package command

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/fairyhunter13/autobank-supervisor/internal/balancemonitor"
	"github.com/fairyhunter13/autobank-supervisor/internal/domain"
	"github.com/fairyhunter13/autobank-supervisor/internal/registry"
	"github.com/fairyhunter13/autobank-supervisor/pkg/textx"
)

// staleAfter marks a Worker's last upload as stale for /active (spec.md §6.3).
const staleAfter = 5 * time.Minute

var (
	otpRe     = regexp.MustCompile(`^\d{6}$`)
	captchaRe = regexp.MustCompile(`^[A-Za-z0-9]{4,8}$`)
)

// Deps bundles the collaborators Dispatch needs. None of it is a
// package-level singleton; callers own exactly one of each.
type Deps struct {
	Registry *registry.Registry
	Monitor  *balancemonitor.Monitor
}

// Result is the plain-text reply a Dispatch call produces.
type Result struct {
	Text   string
	Photos [][]byte
}

// ClassifyBroadcast reports whether text is a 6-digit OTP, a compact
// alphanumeric CAPTCHA, or neither, per spec.md §6.3's broadcast rule.
func ClassifyBroadcast(text string) (isOTP, isCaptcha bool) {
	text = strings.TrimSpace(text)
	if otpRe.MatchString(text) {
		return true, false
	}
	if captchaRe.MatchString(text) {
		return false, true
	}
	return false, false
}

// Dispatch routes one command (a leading slash is optional) and its
// whitespace-split arguments to the matching Registry/Monitor operation.
func Dispatch(ctx context.Context, deps Deps, cmd string, args []string) (Result, error) {
	cmd = strings.ToLower(strings.TrimPrefix(cmd, "/"))
	switch cmd {
	case "run":
		return dispatchRun(ctx, deps, args)
	case "stop":
		return dispatchStop(ctx, deps, args)
	case "stopall":
		return dispatchStopAll(ctx, deps)
	case "running":
		return dispatchRunning(deps)
	case "active":
		return dispatchActive(deps)
	case "balance":
		return dispatchBalance(deps, args)
	case "status":
		return dispatchStatus(ctx, deps, args)
	case "list", "aliases":
		return dispatchList(ctx, deps)
	case "add":
		return dispatchAdd(ctx, deps, args)
	case "edit":
		return dispatchEdit(ctx, deps, args)
	case "file":
		return dispatchFile(deps, args)
	case "alerts":
		return dispatchAlerts(deps)
	case "reset_alerts":
		return dispatchResetAlerts(deps, args)
	case "balances":
		return dispatchBalances(deps)
	default:
		return Result{}, fmt.Errorf("op=command.Dispatch cmd=%s: unknown command", cmd)
	}
}

func dispatchRun(ctx context.Context, deps Deps, args []string) (Result, error) {
	aliases, dateRange, err := splitRunArgs(args)
	if err != nil {
		return Result{}, err
	}
	if len(aliases) == 0 {
		return Result{}, fmt.Errorf("op=command.run: at least one alias required")
	}

	var started, failed []string
	for _, a := range aliases {
		if err := deps.Registry.StartWorkerWithDateRange(ctx, domain.Alias(a), dateRange); err != nil {
			failed = append(failed, fmt.Sprintf("%s (%v)", a, err))
			continue
		}
		started = append(started, a)
	}

	var b strings.Builder
	if len(started) > 0 {
		fmt.Fprintf(&b, "started: %s", strings.Join(started, ", "))
	}
	if len(failed) > 0 {
		if b.Len() > 0 {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "failed: %s", strings.Join(failed, ", "))
	}
	return Result{Text: b.String()}, nil
}

// splitRunArgs pulls out aliases and an optional "from D to D" clause from
// /run's argument list. Only the KGB adapter honors the date range.
func splitRunArgs(args []string) ([]string, *registry.DateRange, error) {
	for i, a := range args {
		if strings.EqualFold(a, "from") {
			if i+3 >= len(args) || !strings.EqualFold(args[i+2], "to") {
				return nil, nil, fmt.Errorf("op=command.run: malformed date range, expected 'from D to D'")
			}
			from, err := time.Parse("02/01/2006", args[i+1])
			if err != nil {
				return nil, nil, fmt.Errorf("op=command.run: bad from date: %w", err)
			}
			to, err := time.Parse("02/01/2006", args[i+3])
			if err != nil {
				return nil, nil, fmt.Errorf("op=command.run: bad to date: %w", err)
			}
			return args[:i], &registry.DateRange{From: from, To: to}, nil
		}
	}
	return args, nil, nil
}

func dispatchStop(ctx context.Context, deps Deps, args []string) (Result, error) {
	if len(args) == 0 {
		return Result{}, fmt.Errorf("op=command.stop: at least one alias required")
	}
	var stopped, failed []string
	for _, a := range args {
		if err := deps.Registry.StopWorker(ctx, domain.Alias(a)); err != nil {
			failed = append(failed, fmt.Sprintf("%s (%v)", a, err))
			continue
		}
		stopped = append(stopped, a)
	}
	var b strings.Builder
	if len(stopped) > 0 {
		fmt.Fprintf(&b, "stopped: %s", strings.Join(stopped, ", "))
	}
	if len(failed) > 0 {
		if b.Len() > 0 {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "failed: %s", strings.Join(failed, ", "))
	}
	return Result{Text: b.String()}, nil
}

func dispatchStopAll(ctx context.Context, deps Deps) (Result, error) {
	if err := deps.Registry.StopAll(ctx); err != nil {
		return Result{}, fmt.Errorf("op=command.stopall: %w", err)
	}
	return Result{Text: "all workers stopped"}, nil
}

func dispatchRunning(deps Deps) (Result, error) {
	infos := deps.Registry.RunningInfo()
	sort.Slice(infos, func(i, j int) bool { return infos[i].Alias < infos[j].Alias })
	if len(infos) == 0 {
		return Result{Text: "no workers running"}, nil
	}
	var lines []string
	for _, info := range infos {
		lines = append(lines, fmt.Sprintf("%s [%s] %s", info.Alias, info.BankLabel, info.State))
	}
	return Result{Text: strings.Join(lines, "\n")}, nil
}

func dispatchActive(deps Deps) (Result, error) {
	infos := deps.Registry.RunningInfo()
	sort.Slice(infos, func(i, j int) bool { return infos[i].Alias < infos[j].Alias })
	if len(infos) == 0 {
		return Result{Text: "no workers active"}, nil
	}
	now := time.Now()
	var lines []string
	for _, info := range infos {
		freshness := "fresh"
		if info.LastUploadAt.IsZero() || now.Sub(info.LastUploadAt) > staleAfter {
			freshness = "stale"
		}
		lines = append(lines, fmt.Sprintf("%s [%s] %s", info.Alias, info.BankLabel, freshness))
	}
	return Result{Text: strings.Join(lines, "\n")}, nil
}

func dispatchBalance(deps Deps, args []string) (Result, error) {
	infos := deps.Registry.RunningInfo()
	if len(args) > 0 {
		want := map[string]bool{}
		for _, a := range args {
			want[a] = true
		}
		var filtered []registry.WorkerInfo
		for _, info := range infos {
			if want[string(info.Alias)] {
				filtered = append(filtered, info)
			}
		}
		infos = filtered
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Alias < infos[j].Alias })
	if len(infos) == 0 {
		return Result{Text: "no matching running workers"}, nil
	}
	var lines []string
	for _, info := range infos {
		lines = append(lines, fmt.Sprintf("%s: %s", info.Alias, info.LastBalance))
	}
	return Result{Text: strings.Join(lines, "\n")}, nil
}

func dispatchStatus(ctx context.Context, deps Deps, args []string) (Result, error) {
	if len(args) != 1 {
		return Result{}, fmt.Errorf("op=command.status: exactly one alias required")
	}
	photos, err := deps.Registry.StatusScreenshot(ctx, domain.Alias(args[0]))
	if err != nil {
		return Result{}, fmt.Errorf("op=command.status alias=%s: %w", args[0], err)
	}
	return Result{Text: fmt.Sprintf("%s: %d tab(s)", args[0], len(photos)), Photos: photos}, nil
}

func dispatchList(ctx context.Context, deps Deps) (Result, error) {
	creds, err := deps.Registry.Aliases(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("op=command.list: %w", err)
	}
	sort.Slice(creds, func(i, j int) bool { return creds[i].Alias < creds[j].Alias })
	var lines []string
	for _, c := range creds {
		lines = append(lines, fmt.Sprintf("%s [%s] %s", c.Alias, c.BankLabel, maskAccountNumber(c.AccountNumber)))
	}
	if len(lines) == 0 {
		return Result{Text: "credential store is empty"}, nil
	}
	return Result{Text: strings.Join(lines, "\n")}, nil
}

// maskAccountNumber renders all but the last 4 digits as "***", per spec.md
// §6.3's /list masking rule.
func maskAccountNumber(acc string) string {
	if len(acc) <= 4 {
		return "***" + acc
	}
	return "***" + acc[len(acc)-4:]
}

func dispatchAdd(ctx context.Context, deps Deps, args []string) (Result, error) {
	if len(args) != 1 {
		return Result{}, fmt.Errorf("op=command.add: expected a single comma-separated field list")
	}
	fields := strings.Split(args[0], ",")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	if len(fields) != 4 && len(fields) != 5 {
		return Result{}, fmt.Errorf("op=command.add: expected 4 or 5 comma-separated fields (alias,username,password,accountNumber[,loginId])")
	}

	cred := domain.Credential{
		Alias:         domain.Alias(fields[0]),
		Username:      fields[1],
		Password:      fields[2],
		AccountNumber: fields[3],
	}
	if len(fields) == 5 {
		cred.LoginID = fields[4]
	}

	if err := deps.Registry.AddCredential(ctx, cred); err != nil {
		return Result{}, fmt.Errorf("op=command.add alias=%s: %w", cred.Alias, err)
	}
	return Result{Text: fmt.Sprintf("added %s", cred.Alias)}, nil
}

var editableFields = map[string]bool{
	"loginId":       true,
	"userId":        true,
	"password":      true,
	"accountNumber": true,
}

func dispatchEdit(ctx context.Context, deps Deps, args []string) (Result, error) {
	if len(args) != 3 {
		return Result{}, fmt.Errorf("op=command.edit: expected <alias> <field> <value>")
	}
	alias, field, value := args[0], args[1], args[2]
	if !editableFields[field] {
		return Result{}, fmt.Errorf("op=command.edit field=%s: not an editable field", field)
	}
	if _, err := deps.Registry.EditCredential(ctx, domain.Alias(alias), field, value); err != nil {
		return Result{}, fmt.Errorf("op=command.edit alias=%s: %w", alias, err)
	}
	return Result{Text: fmt.Sprintf("%s.%s updated", alias, field)}, nil
}

var statementExtRe = regexp.MustCompile(`(?i)\.(csv|xls|xlsx)$`)

func dispatchFile(deps Deps, args []string) (Result, error) {
	if len(args) != 1 {
		return Result{}, fmt.Errorf("op=command.file: exactly one alias required")
	}
	dir := deps.Registry.DownloadDir(domain.Alias(args[0]))
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Result{}, fmt.Errorf("op=command.file alias=%s: %w", args[0], err)
	}

	var latest os.DirEntry
	var latestMod time.Time
	for _, e := range entries {
		if e.IsDir() || !statementExtRe.MatchString(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(latestMod) {
			latest, latestMod = e, info.ModTime()
		}
	}
	if latest == nil {
		return Result{}, fmt.Errorf("op=command.file alias=%s: no statement files found", args[0])
	}
	return Result{Text: filepath.Join(dir, latest.Name())}, nil
}

func dispatchAlerts(deps Deps) (Result, error) {
	snaps := deps.Monitor.Balances()
	if len(snaps) == 0 {
		return Result{Text: "balance monitor has no running aliases to watch"}, nil
	}
	ladder := domain.DefaultThresholdLadder()
	var lines []string
	for _, s := range snaps {
		lines = append(lines, describeAgainstLadder(s, ladder))
	}
	sort.Strings(lines)
	return Result{Text: strings.Join(lines, "\n")}, nil
}

func dispatchResetAlerts(deps Deps, args []string) (Result, error) {
	if len(args) != 1 {
		return Result{}, fmt.Errorf("op=command.reset_alerts: expected <alias|all>")
	}
	if strings.EqualFold(args[0], "all") {
		deps.Monitor.ResetAllAlerts()
		return Result{Text: "all alert state cleared"}, nil
	}
	deps.Monitor.ResetAlerts(domain.Alias(args[0]))
	return Result{Text: fmt.Sprintf("%s alert state cleared", args[0])}, nil
}

func dispatchBalances(deps Deps) (Result, error) {
	snaps := deps.Monitor.Balances()
	if len(snaps) == 0 {
		return Result{Text: "no running workers"}, nil
	}
	ladder := domain.DefaultThresholdLadder()
	var lines []string
	for _, s := range snaps {
		lines = append(lines, describeAgainstLadder(s, ladder))
	}
	sort.Strings(lines)
	return Result{Text: strings.Join(lines, "\n")}, nil
}

func describeAgainstLadder(s balancemonitor.Snapshot, ladder domain.ThresholdLadder) string {
	return fmt.Sprintf("%s: %s (rung: %s)", s.Alias, s.Balance, nearestRungLabel(s.Balance, ladder))
}

func nearestRungLabel(raw string, ladder domain.ThresholdLadder) string {
	value, ok := textx.ParseBalance(raw)
	if !ok {
		return "unknown"
	}
	if step, ok := ladder.HighestCrossed(value); ok {
		return step.Urgency
	}
	return "below lowest rung"
}
