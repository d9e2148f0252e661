package output

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"orderflow-engine/pkg/types"
)

// Mode controls how much the console printer writes per market tick.
type Mode string

const (
	ModeNormal Mode = "normal"
	ModeQuiet  Mode = "quiet"
	ModeSilent Mode = "silent"
)

// Console is a colored terminal printer for signals and status lines.
// Signals print in every mode. The periodic status line prints in normal and
// silent modes; quiet mode prints it only while unsynced or while desyncs
// are being counted. Console has no per-tick market-state output, so normal
// and silent print the same lines.
type Console struct {
	mode  Mode
	buy   *color.Color
	sell  *color.Color
	info  *color.Color
	warn  *color.Color
	out   io.Writer
}

// NewConsole builds a console sink. enableColor false disables ANSI codes
// entirely (useful when output is piped to a file).
func NewConsole(mode string, enableColor bool, out io.Writer) *Console {
	if !enableColor {
		color.NoColor = true
	}
	return &Console{
		mode: Mode(mode),
		buy:  color.New(color.FgGreen, color.Bold),
		sell: color.New(color.FgRed, color.Bold),
		info: color.New(color.FgCyan),
		warn: color.New(color.FgYellow),
		out:  out,
	}
}

// Signal prints an emitted trading signal. Printed in every mode, including silent.
func (c *Console) Signal(s types.Signal) {
	printer := c.buy
	if s.Type == types.SignalSell {
		printer = c.sell
	}

	printer.Fprintf(c.out, "[%s] %s @ %s  confidence=%d%% pattern=%s vol=%s reasons=%v\n",
		s.Timestamp.Format("15:04:05"), s.Type, s.Price.String(), s.Confidence, s.Pattern, s.Volatility, s.Reasons)
}

// Status prints the periodic status line. Normal and silent print every
// call; quiet only prints when synced dropped or desyncs are accruing,
// matching the original's reduced verbosity modes.
func (c *Console) Status(s types.StatusUpdate) {
	if c.mode == ModeQuiet && s.Synced && s.DesyncCount == 0 {
		return
	}

	line := fmt.Sprintf("status: synced=%v last_update_id=%d desync=%d ob_updates=%d trades=%d delta=%s vol=%s uptime=%.0fs",
		s.Synced, s.LastUpdateID, s.DesyncCount, s.OrderBookUpdates, s.TradeCount, s.Delta.String(), s.Volatility, s.UptimeSeconds)

	if !s.Synced {
		c.warn.Fprintln(c.out, line)
		return
	}
	c.info.Fprintln(c.out, line)
}

// Final prints the shutdown statistics block. Always printed, even in
// silent mode, since it only fires once.
func (c *Console) Final(s types.FinalStats) {
	c.info.Fprintf(c.out, "\n--- final stats ---\n")
	fmt.Fprintf(c.out, "uptime:            %.0fs\n", s.UptimeSeconds)
	fmt.Fprintf(c.out, "order book updates: %d\n", s.OrderBookUpdates)
	fmt.Fprintf(c.out, "trades processed:   %d\n", s.TradeCount)
	fmt.Fprintf(c.out, "signals emitted:    %d (buy=%d sell=%d)\n", s.TotalSignals, s.BuySignals, s.SellSignals)
	fmt.Fprintf(c.out, "avg confidence:     %.1f\n", s.AvgConfidence)
	fmt.Fprintf(c.out, "signals filtered:   %d (%.1f%%)\n", s.SignalsFiltered, s.FilterRate*100)
	for reason, count := range s.FilterReasons {
		fmt.Fprintf(c.out, "  %-20s %d\n", reason, count)
	}
}
