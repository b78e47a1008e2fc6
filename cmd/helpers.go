package cmd

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ANSI colors shared by the cmd output helpers
const (
	ColorReset  = "\033[0m"
	ColorBold   = "\033[1m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorBlue   = "\033[34m"
	ColorPurple = "\033[35m"
	ColorCyan   = "\033[36m"
	ColorWhite  = "\033[37m"
)

var titleCaser = cases.Title(language.English)

func printHeader(title, subject string) {
	fmt.Printf("%s%s%s%s: %s%s%s\n", ColorBold, ColorBlue, title, ColorReset, ColorCyan, subject, ColorReset)
	fmt.Printf("%s%s%s\n\n", ColorBlue, strings.Repeat("═", 80), ColorReset)
}

func printStep(num int, title string) {
	fmt.Printf("%s%s%d%s %s%s%s\n", ColorBold, ColorPurple, num, ColorReset, ColorWhite, title, ColorReset)
}

func printSectionHeader(title string) {
	fmt.Printf("%s%s%s%s\n", ColorBold, ColorBlue, title, ColorReset)
}

func printSuccess(format string, args ...any) {
	fmt.Printf("   %s✓%s %s\n", ColorGreen, ColorReset, fmt.Sprintf(format, args...))
}

func printWarning(format string, args ...any) {
	fmt.Printf("   %s⚠%s %s\n", ColorYellow, ColorReset, fmt.Sprintf(format, args...))
}

func printError(format string, args ...any) {
	fmt.Printf("   %s✗%s %s\n", ColorRed, ColorReset, fmt.Sprintf(format, args...))
}

func printInfo(format string, args ...any) {
	fmt.Printf("   %s•%s %s\n", ColorCyan, ColorReset, fmt.Sprintf(format, args...))
}

func printResult(name string, success bool) {
	if success {
		fmt.Printf("%-20s %s✓ PASS%s\n", name+":", ColorGreen, ColorReset)
	} else {
		fmt.Printf("%-20s %s✗ FAIL%s\n", name+":", ColorRed, ColorReset)
	}
}

func printSection(title string) {
	fmt.Printf("\n%s\n", title)
	fmt.Println(strings.Repeat("-", len(title)))
}

func printSubsection(title string) {
	fmt.Printf("\n  %s\n", title)
}

func printKeyValue(key, value string) {
	if value == "" {
		fmt.Printf("%-35s\n", key)
	} else {
		fmt.Printf("%-35s %s\n", key+":", value)
	}
}

func displayEventName(event string) string {
	return titleCaser.String(strings.ReplaceAll(event, "_", " "))
}

// PerformanceTimer tracks named event durations for the test commands
type PerformanceTimer struct {
	created   time.Time
	starts    map[string]time.Time
	durations map[string]time.Duration
}

func NewPerformanceTimer() *PerformanceTimer {
	return &PerformanceTimer{
		created:   time.Now(),
		starts:    make(map[string]time.Time),
		durations: make(map[string]time.Duration),
	}
}

func (t *PerformanceTimer) StartEvent(name string) {
	t.starts[name] = time.Now()
}

func (t *PerformanceTimer) EndEvent(name string) {
	if start, ok := t.starts[name]; ok {
		t.durations[name] = time.Since(start)
	}
}

// GetDuration returns the recorded duration for an event, zero if the event
// never completed
func (t *PerformanceTimer) GetDuration(name string) time.Duration {
	return t.durations[name]
}

func (t *PerformanceTimer) GetTotalDuration() time.Duration {
	return time.Since(t.created)
}
