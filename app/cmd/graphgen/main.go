package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"graphgen/app/bootstrap"
	"graphgen/app/config"
	"graphgen/app/usecase"
	"graphgen/internal/domain/entity"
	"graphgen/internal/infrastructure/store/filesystem"
)

const topicPrompt = "Please enter a topic for which you'd like a graph to be generated: "

const separator = "-------------------------------"

func main() {
	// .env is optional
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Stdin, os.Stdout, os.Getenv); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, in io.Reader, out io.Writer, getenv func(string) string) error {
	// logs go to stderr so stdout carries only the conversation
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	cfg, err := config.Load(getenv)
	if err != nil {
		return err
	}

	runs, err := filesystem.NewRunRepository(cfg.FileRepo.Dir)
	if err != nil {
		return fmt.Errorf("%w: init run repository: %v", entity.ErrIO, err)
	}
	executor, err := bootstrap.NewExecutor(cfg.Sandbox, logger)
	if err != nil {
		return err
	}

	pipeline := usecase.NewGraphPipeline(
		bootstrap.NewGenerator(cfg.LLM),
		bootstrap.NewValidator(cfg.Sandbox),
		executor,
		runs,
		usecase.OutputOptions{
			Dir:      cfg.Output.Dir,
			FileName: cfg.Output.FileName,
			PerRun:   cfg.Output.PerRun,
		},
		bootstrap.Capabilities(cfg.LLM),
		logger,
	)

	topic, err := readTopic(in, out)
	if err != nil {
		return err
	}

	run, err := pipeline.RunWithEvents(ctx, topic, printer(out))
	if run != nil && run.Code != "" {
		fmt.Fprintf(out, "Python code written to %s\n", runs.ScriptPath(run.ID))
	}
	return err
}

func readTopic(in io.Reader, out io.Writer) (string, error) {
	fmt.Fprint(out, topicPrompt)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("%w: read topic: %v", entity.ErrIO, err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// printer renders pipeline events the way a terminal user wants to read them.
func printer(out io.Writer) usecase.EmitFunc {
	return func(ev entity.RunEvent) {
		switch ev.Stage {
		case entity.StageRequest:
			fmt.Fprintln(out, strings.TrimSpace(ev.Payload))
			fmt.Fprintln(out, separator)
		case entity.StageGenerate:
			if ev.Message != "" {
				fmt.Fprintln(out, ev.Message)
			}
			if ev.Payload != "" {
				fmt.Fprintln(out, separator)
				fmt.Fprintf(out, "``` python\n%s\n```\n", strings.TrimRight(ev.Payload, "\n"))
				fmt.Fprintln(out, separator)
			}
		case entity.StageValidate:
			fmt.Fprintln(out, ev.Message)
		case entity.StageExecute:
			if ev.Payload != "" {
				fmt.Fprintf(out, "```\n%s\n```\n", strings.TrimRight(ev.Payload, "\n"))
			}
		case entity.StageCompleted:
			fmt.Fprintf(out, "Graph written to %s\n", ev.Payload)
		case entity.StageFailed:
			fmt.Fprintf(out, "Run failed: %s\n", ev.Message)
		}
	}
}
