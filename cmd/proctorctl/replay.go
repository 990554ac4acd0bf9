package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/stemsi/exstem-proctor/internal/assessment"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/proctor"
	ws "github.com/stemsi/exstem-proctor/internal/websocket"
)

type replayOptions struct {
	Questions       int
	DurationSeconds int
	Policy          config.Policy
	Trace           bool
	Log             zerolog.Logger
}

// replayReport is printed after a replay.
type replayReport struct {
	Lines    int           `json:"lines"`
	Rejected int           `json:"rejected"`
	Effects  int           `json:"effects"`
	Final    proctor.State `json:"final"`
}

func replayCmd(newLog func() zerolog.Logger) *cobra.Command {
	var (
		file       string
		policyFile string
		opts       replayOptions
	)

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay a recorded client message log through the session reducer",
		Long: `Replay reads one client message per line (the same JSON the browser
sends, plus {"action":"tick"} for each elapsed second) and drives an offline
session with it. Submissions are accepted locally. The final state is
printed as JSON.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			policy, err := config.LoadPolicy(policyFile)
			if err != nil {
				return err
			}
			opts.Policy = policy
			opts.Log = newLog()

			in := cmd.InOrStdin()
			if file != "" && file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return fmt.Errorf("open replay log: %w", err)
				}
				defer f.Close()
				in = f
			}

			report, err := replay(cmd.Context(), in, cmd.ErrOrStderr(), opts)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "-", "Message log (JSON lines), - for stdin")
	cmd.Flags().StringVar(&policyFile, "policy", "", "Monitoring policy YAML (defaults when empty)")
	cmd.Flags().IntVar(&opts.Questions, "questions", 10, "Number of questions in the replayed paper")
	cmd.Flags().IntVar(&opts.DurationSeconds, "duration", 3600, "Session duration in seconds")
	cmd.Flags().BoolVar(&opts.Trace, "trace", false, "Print every effect to stderr")

	return cmd
}

// replay feeds each decoded line of in to a fresh session. Lines that do
// not decode are counted and skipped.
func replay(ctx context.Context, in io.Reader, trace io.Writer, opts replayOptions) (*replayReport, error) {
	if opts.Questions <= 0 {
		return nil, fmt.Errorf("questions must be positive")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start
	clock := func() time.Time { return now }

	questions := make([]model.Question, opts.Questions)
	for i := range questions {
		questions[i] = model.Question{
			Text:            fmt.Sprintf("Question %d", i+1),
			ShuffledOptions: []string{"A", "B", "C", "D"},
		}
	}
	sess := proctor.NewSession(model.AssessmentSession{
		SessionID:        "replay",
		AssessmentID:     "replay",
		AssessmentName:   "Replay",
		Questions:        questions,
		DurationSeconds:  opts.DurationSeconds,
		RemainingSeconds: opts.DurationSeconds,
		StartedAt:        start,
	}, opts.Policy, opts.Log, clock)

	report := &replayReport{}
	remote := offlineRemote{}

	var run func(effects []proctor.Effect)
	run = func(effects []proctor.Effect) {
		for _, eff := range effects {
			report.Effects++
			if opts.Trace {
				fmt.Fprintf(trace, "  %T %s\n", eff, describe(eff))
			}
			if req, ok := eff.(proctor.StartSubmission); ok {
				run(sess.Handle(proctor.Submit(ctx, remote, req)))
			}
		}
	}
	run(sess.Start(true))

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		report.Lines++

		d, err := ws.Decode(line)
		if err != nil {
			report.Rejected++
			opts.Log.Warn().Err(err).Int("line", report.Lines).Msg("Skipping message")
			continue
		}

		var ev proctor.Event
		switch d.Action {
		case ws.ActionPing:
			continue
		case ws.ActionFaces:
			ev = proctor.FrameSample{Faces: d.Faces}
		case ws.ActionTick:
			now = now.Add(opts.Policy.TickInterval)
			ev = d.Event
		default:
			ev = d.Event
		}
		if opts.Trace {
			fmt.Fprintf(trace, "%d %s\n", report.Lines, d.Action)
		}
		run(sess.Handle(ev))
		if sess.Done() {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read replay log: %w", err)
	}

	report.Final = sess.State()
	return report, nil
}

func describe(eff proctor.Effect) string {
	switch e := eff.(type) {
	case proctor.Notify:
		if e.Notice.Code != "" {
			return fmt.Sprintf("%s %s", e.Notice.Kind, e.Notice.Code)
		}
		return string(e.Notice.Kind)
	case proctor.Issue:
		return fmt.Sprintf("%s %s", e.Command.Name, e.Command.Target)
	case proctor.Audit:
		return string(e.Kind)
	}
	return ""
}

// offlineRemote accepts every submission without a score.
type offlineRemote struct{}

func (offlineRemote) GetQuestions(context.Context, string, string) (*assessment.QuestionSet, error) {
	return nil, fmt.Errorf("offline replay does not fetch questions")
}

func (offlineRemote) ValidateSession(context.Context, string) (*assessment.Validation, error) {
	return &assessment.Validation{Valid: true}, nil
}

func (offlineRemote) SubmitAnswers(context.Context, string, map[int]string) (*assessment.SubmitReceipt, error) {
	return &assessment.SubmitReceipt{Success: true}, nil
}
