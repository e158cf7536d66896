package export

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os/exec"
	"strconv"
	"strings"
	"sync"
)

// ProgressFunc receives encoder progress as a percentage plus a short human
// message.
type ProgressFunc func(pct float64, message string)

// Run executes one encoder command, reporting progress parsed from ffmpeg's
// machine-readable progress stream. The command's temp files are removed when
// the run finishes, whatever the outcome. Cancellation goes through ctx and
// terminates the subprocess.
func Run(ctx context.Context, cmd *Command, progress ProgressFunc) error {
	defer cleanupFiles(cmd.TempFiles)

	args := append([]string{"-nostats", "-progress", "pipe:1"}, cmd.Args...)
	proc := exec.CommandContext(ctx, "ffmpeg", args...)

	stdout, err := proc.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create ffmpeg stdout pipe: %v", err)
	}
	stderr, err := proc.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create ffmpeg stderr pipe: %v", err)
	}

	if err := proc.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %v", err)
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			line := scanner.Text()
			// out_time_us is microseconds of encoded output.
			if v, ok := strings.CutPrefix(line, "out_time_us="); ok {
				us, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
				if err != nil || cmd.DurationMS <= 0 {
					continue
				}
				pct := float64(us) / 1000.0 / float64(cmd.DurationMS) * 100.0
				if pct > 100 {
					pct = 100
				}
				if progress != nil {
					progress(pct, "encoding")
				}
			}
		}
	}()

	// Keep only the tail of stderr; that is where ffmpeg puts its
	// diagnostics when it fails.
	var tailMu sync.Mutex
	var tail []string
	wg.Add(1)
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			tailMu.Lock()
			tail = append(tail, scanner.Text())
			if len(tail) > 30 {
				tail = tail[len(tail)-30:]
			}
			tailMu.Unlock()
		}
	}()

	// Wait closes the pipes under their readers, so both scanners must
	// drain before it runs or the failure diagnostic loses its tail.
	wg.Wait()
	waitErr := proc.Wait()

	if ctx.Err() != nil {
		log.Printf("export: encoder canceled for %s", cmd.OutputPath)
		return fmt.Errorf("export canceled: %w", ctx.Err())
	}
	if waitErr != nil {
		tailMu.Lock()
		diag := strings.Join(tail, "\n")
		tailMu.Unlock()
		return fmt.Errorf("ffmpeg failed: %v\nOutput: %s", waitErr, diag)
	}

	if progress != nil {
		progress(100, "encoding complete")
	}
	return nil
}
