package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skryne/ragd/internal/conversation"
	"github.com/skryne/ragd/internal/domain"
	"github.com/skryne/ragd/internal/prompt"
	"github.com/skryne/ragd/internal/retriever"
	openaiTransport "github.com/skryne/ragd/internal/transport/openai"
	"github.com/skryne/ragd/internal/usecase/ask"
)

var (
	askQuestion string
	askSession  string
	askTopK     int
	askStream   bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question against the indexed corpus",
	Long: `Ask retrieves the most relevant chunks for a question and generates an
answer grounded in them, citing the source files it used.

Examples:
  ragctl ask "What does product B cost?"
  ragctl ask "What about product A?" --session support --top-k 5
  ragctl ask "Summarize the refund policy" --stream`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().StringVarP(&askQuestion, "question", "q", "", "question to ask (or pass as argument)")
	askCmd.Flags().StringVar(&askSession, "session", "", "conversation session id")
	askCmd.Flags().IntVarP(&askTopK, "top-k", "k", 0, "number of chunks to retrieve (default from config)")
	askCmd.Flags().BoolVar(&askStream, "stream", false, "print answer tokens as they arrive")
}

func runAsk(cmd *cobra.Command, args []string) error {
	if askQuestion == "" && len(args) > 0 {
		askQuestion = args[0]
	}
	if askQuestion == "" {
		return fmt.Errorf("a question is required (positional or -q)")
	}

	_, queryEmbedder := newEmbedders()

	idx, err := openIndex(queryEmbedder.Identifier())
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}
	defer idx.Close()

	assembler, err := prompt.NewAssembler(prompt.AssemblerConfig{
		HistoryWindow:   cfg.Conversation.HistoryWindow,
		MaxContextChars: cfg.Conversation.MaxContextChars,
	})
	if err != nil {
		return err
	}

	generator := openaiTransport.NewGenerator(&openaiTransport.GeneratorConfig{
		APIKey:  cfg.Generation.APIKey,
		BaseURL: cfg.Generation.BaseURL,
		Model:   cfg.Generation.Model,
		Logger:  logger,
	})

	var retrieverOpts []retriever.Option
	if cfg.Retrieval.MaxDistance > 0 {
		retrieverOpts = append(retrieverOpts, retriever.WithMaxDistance(cfg.Retrieval.MaxDistance))
	}
	ret := retriever.New(idx, queryEmbedder, retrieverOpts...)

	svc := ask.New(ret, assembler, generator, conversation.NewStore(cfg.Conversation.MaxTurns),
		logger, ask.WithTopK(cfg.Retrieval.TopK))

	req := ask.Request{SessionID: askSession, Question: askQuestion, TopK: askTopK}
	if askStream {
		return streamAnswer(cmd, svc, req)
	}

	answer, err := svc.Ask(cmd.Context(), req)
	if err != nil {
		return err
	}

	fmt.Println(answer.Answer)
	printSources(answer.Sources)
	return nil
}

func streamAnswer(cmd *cobra.Command, svc *ask.Service, req ask.Request) error {
	events, err := svc.AskStream(cmd.Context(), req)
	if err != nil {
		return err
	}

	var sources []domain.Citation
	for ev := range events {
		switch ev.Type {
		case ask.EventSources:
			sources = ev.Sources
		case ask.EventToken:
			fmt.Print(ev.Token)
		case ask.EventDone:
			fmt.Println()
		case ask.EventError:
			fmt.Println()
			return fmt.Errorf("%s stage: %w", ev.Stage, ev.Err)
		}
	}

	printSources(sources)
	return nil
}

func printSources(citations []domain.Citation) {
	if len(citations) == 0 {
		return
	}
	fmt.Println("\nSources:")
	for _, c := range citations {
		fmt.Printf("  [%d] %s\n", c.Rank, c.Source)
	}
}
