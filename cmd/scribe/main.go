package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"scribe.fm/align"
	"scribe.fm/config"
	"scribe.fm/pipeline"
	"scribe.fm/scribe"
	"scribe.fm/session"
	"scribe.fm/snd"
	"scribe.fm/transcript"
)

var rootCmd = &cobra.Command{
	Use:   "scribe",
	Short: "Scribe transcribes live audio streams and recorded files",
	Long:  `Scribe runs speech recognition with speaker attribution over live streams (via ffmpeg) and recorded audio files, and keeps every run's transcript and captions in a session directory.`,
}

var liveCmd = &cobra.Command{
	Use:   "live <input>",
	Short: "Transcribe a live stream or capture device with the local recognizer",
	Args:  cobra.ExactArgs(1),
	Run:   runLive,
}

var fileCmd = &cobra.Command{
	Use:   "file <path>",
	Short: "Transcribe a recorded audio file through the provider chain",
	Args:  cobra.ExactArgs(1),
	Run:   runFile,
}

var realtimeCmd = &cobra.Command{
	Use:   "realtime <input>",
	Short: "Stream audio to the hosted realtime recognition socket",
	Run:   runRealtime,
	Args:  cobra.ExactArgs(1),
}

var alignCmd = &cobra.Command{
	Use:   "align <session-id> <chapters.json>",
	Short: "Align chapter summaries to a stored session's timeline",
	Long:  `Align reads a JSON array of {"title", "summary"} objects and maps each chapter onto the session's caption timestamps using fuzzy matching.`,
	Args:  cobra.ExactArgs(2),
	Run:   runAlign,
}

var lsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List stored sessions",
	Run:   runList,
}

var showCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Print a stored session's transcript",
	Args:  cobra.ExactArgs(1),
	Run:   runShow,
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "path to config file")
	rootCmd.AddCommand(liveCmd)
	rootCmd.AddCommand(fileCmd)
	rootCmd.AddCommand(realtimeCmd)
	rootCmd.AddCommand(alignCmd)
	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(showCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func setup(cmd *cobra.Command) (*config.Config, *log.Logger) {
	logger := log.New(os.Stderr)

	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		logger.Fatal("load config", "error", err.Error())
	}
	return cfg, logger
}

// signalContext cancels on SIGINT or SIGTERM so a live session shuts
// down cleanly and flushes its artifacts.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sc
		cancel()
	}()
	return ctx, cancel
}

func runLive(cmd *cobra.Command, args []string) {
	cfg, logger := setup(cmd)

	p, err := pipeline.Build(cfg, logger.With().WithPrefix("pipe"))
	if err != nil {
		logger.Fatal("build pipeline", "error", err.Error())
	}

	ctx, cancel := signalContext()
	defer cancel()

	sess, err := p.RunLive(ctx, args[0])
	if err != nil {
		logger.Error("live session ended with error", "error", err.Error())
	}
	if sess != nil {
		fmt.Println(sess.Dir())
	}
}

func runFile(cmd *cobra.Command, args []string) {
	cfg, logger := setup(cmd)

	p, err := pipeline.Build(cfg, logger.With().WithPrefix("pipe"))
	if err != nil {
		logger.Fatal("build pipeline", "error", err.Error())
	}

	ctx, cancel := signalContext()
	defer cancel()

	sess, err := p.TranscribeFile(ctx, args[0])
	if err != nil {
		logger.Fatal("transcribe file", "error", err.Error())
	}
	fmt.Println(sess.Dir())
}

func runRealtime(cmd *cobra.Command, args []string) {
	cfg, logger := setup(cmd)
	hearLogger := logger.With().WithPrefix("hear")

	client := scribe.NewClient(cfg.ScribeAPIKey, cfg.ScribeBaseURL, cfg.MaxRetries, true, hearLogger)
	if !client.Available() {
		logger.Fatal("missing SCRIBE_SCRIBE_API_KEY")
	}

	ctx, cancel := signalContext()
	defer cancel()

	store := session.NewStore(cfg.SessionDir, logger)
	sess, err := store.Create(args[0])
	if err != nil {
		logger.Fatal("create session", "error", err.Error())
	}

	source := snd.NewFFmpegSource(args[0], cfg.SampleRate,
		cfg.LiveChunkSeconds, cfg.MinChunkSeconds, cfg.StopTimeout, hearLogger)
	if err := source.Start(); err != nil {
		logger.Fatal("start audio source", "error", err.Error())
	}

	rt, err := client.StartRealtime(ctx, cfg.SampleRate, cfg.Language)
	if err != nil {
		source.Stop()
		logger.Fatal("open realtime session", "error", err.Error())
	}
	defer rt.Close()

	go func() {
		<-ctx.Done()
		source.Stop()
	}()

	go func() {
		frames := 0
		for chunk := range source.Chunks() {
			if err := rt.SendAudio(chunk.Bytes()); err != nil {
				hearLogger.Error("send audio", "error", err.Error())
				return
			}
			frames++
		}
		if err := rt.EndStream(frames); err != nil {
			hearLogger.Error("end stream", "error", err.Error())
		}
	}()

	assembler := transcript.NewAssembler(cfg.LiveWindowSeconds, cfg.ParagraphGapSeconds)
	segments, errs := rt.Receive(ctx)
	for seg := range segments {
		assembler.Add(seg)
		fmt.Printf("[%7.2fs] %s\n", seg.Start, seg.Text)
	}
	if err := <-errs; err != nil {
		hearLogger.Error("realtime stream", "error", err.Error())
	}

	if err := sess.SaveArtifacts(assembler.History(), assembler.RenderFull()); err != nil {
		logger.Fatal("save artifacts", "error", err.Error())
	}
	if err := sess.Finish("scribe", cfg.Language, true, source.Err()); err != nil {
		logger.Fatal("finish session", "error", err.Error())
	}
	fmt.Println(sess.Dir())
}

func runAlign(cmd *cobra.Command, args []string) {
	cfg, logger := setup(cmd)

	sess, err := session.NewStore(cfg.SessionDir, logger).Open(args[0])
	if err != nil {
		logger.Fatal("open session", "error", err.Error())
	}
	segments, err := sess.Segments()
	if err != nil {
		logger.Fatal("read session segments", "error", err.Error())
	}

	data, err := os.ReadFile(args[1])
	if err != nil {
		logger.Fatal("read chapters file", "error", err.Error())
	}
	var chapters []align.Chapter
	if err := json.Unmarshal(data, &chapters); err != nil {
		logger.Fatal("decode chapters file", "error", err.Error())
	}

	aligned := align.Chapters(chapters, segments, align.Config{
		ConfidenceThreshold: cfg.AlignConfidence,
		CueChars:            cfg.AlignCueChars,
	}, logger.With().WithPrefix("align"))

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Start", "Title"})
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	for _, ch := range aligned {
		start := "-"
		if ch.Aligned {
			start = fmt.Sprintf("%.1fs", ch.Start)
		}
		table.Append([]string{start, ch.Title})
	}
	table.Render()
}

func runList(cmd *cobra.Command, args []string) {
	cfg, logger := setup(cmd)

	sessions, err := session.NewStore(cfg.SessionDir, logger).List()
	if err != nil {
		logger.Fatal("list sessions", "error", err.Error())
	}
	if len(sessions) == 0 {
		fmt.Println("No sessions found.")
		return
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "Started", "Input", "Provider", "Diarized", "Status"})
	table.SetBorder(false)
	table.SetAutoWrapText(false)

	for _, meta := range sessions {
		status := "ok"
		if meta.Error != "" {
			status = meta.Error
		} else if meta.EndedAt.IsZero() {
			status = "running"
		}
		table.Append([]string{
			meta.ID,
			meta.StartedAt.Format(time.DateTime),
			meta.Input,
			meta.Provider,
			fmt.Sprintf("%t", meta.Diarized),
			status,
		})
	}
	table.Render()
}

func runShow(cmd *cobra.Command, args []string) {
	cfg, logger := setup(cmd)

	sess, err := session.NewStore(cfg.SessionDir, logger).Open(args[0])
	if err != nil {
		logger.Fatal("open session", "error", err.Error())
	}

	text, err := os.ReadFile(sess.Dir() + "/transcript.txt")
	if err != nil {
		logger.Fatal("read transcript", "error", err.Error())
	}
	fmt.Print(string(text))
}
