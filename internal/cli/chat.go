package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"ollama-dash/internal/ollama"
	"ollama-dash/internal/session"
	"ollama-dash/internal/stream"
)

type lineInput interface {
	ReadLine(prompt string) (string, error)
	Close() error
}

type basicLineInput struct {
	reader *bufio.Reader
	out    io.Writer
}

func newBasicLineInput(in io.Reader, out io.Writer) *basicLineInput {
	return &basicLineInput{reader: bufio.NewReader(in), out: out}
}

func (b *basicLineInput) ReadLine(prompt string) (string, error) {
	if b.out != nil {
		fmt.Fprint(b.out, prompt)
	}
	line, err := b.reader.ReadString('\n')
	if err != nil {
		if err == io.EOF && line != "" {
			return strings.TrimRight(line, "\r\n"), nil
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (b *basicLineInput) Close() error { return nil }

type readlineInput struct {
	instance *readline.Instance
}

func newReadlineInput() (*readlineInput, error) {
	instance, err := readline.NewEx(&readline.Config{
		Prompt:            ">>> ",
		HistorySearchFold: true,
		InterruptPrompt:   "^C",
		EOFPrompt:         "/exit",
	})
	if err != nil {
		return nil, err
	}
	return &readlineInput{instance: instance}, nil
}

func (r *readlineInput) ReadLine(prompt string) (string, error) {
	r.instance.SetPrompt(prompt)
	return r.instance.Readline()
}

func (r *readlineInput) Close() error {
	if r == nil || r.instance == nil {
		return nil
	}
	return r.instance.Close()
}

func (a *app) chatCommand() *cobra.Command {
	var (
		render   bool
		chatMode bool
		noStream bool
		opts     = session.DefaultChatOptions()
	)
	cmd := &cobra.Command{
		Use:   "chat <model>",
		Short: "Interactive chat in the terminal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.newClient()
			if err != nil {
				return err
			}
			opts.Model = args[0]
			opts.Stream = !noStream
			if chatMode {
				opts.Mode = stream.ModeChat
			}

			in, err := newReadlineInput()
			var input lineInput = in
			if err != nil {
				input = newBasicLineInput(os.Stdin, cmd.OutOrStdout())
			}
			defer input.Close()

			c := newChatSession(client, a.cfg.DaemonURL, opts, render, cmd.OutOrStdout())
			return c.run(cmd.Context(), input)
		},
	}
	cmd.Flags().BoolVar(&render, "render", false, "render answers as markdown")
	cmd.Flags().BoolVar(&chatMode, "chat-api", false, "use /api/chat instead of /api/generate")
	cmd.Flags().BoolVar(&noStream, "no-stream", false, "wait for the whole answer")
	cmd.Flags().Float64Var(&opts.Temperature, "temperature", opts.Temperature, "sampling temperature (0-2)")
	cmd.Flags().IntVar(&opts.NumCtx, "num-ctx", opts.NumCtx, "context length (2048-32768)")
	return cmd
}

// chatSession is a terminal conversation backed by the same session state
// the panel uses.
type chatSession struct {
	client *ollama.Client
	state  *session.State
	render bool
	out    io.Writer
}

func newChatSession(client *ollama.Client, target string, opts session.ChatOptions, render bool, out io.Writer) *chatSession {
	st := session.New(target)
	st.SetChatOptions(opts)
	return &chatSession{client: client, state: st, render: render, out: out}
}

func (c *chatSession) run(ctx context.Context, in lineInput) error {
	opts := c.state.ChatOptions()
	fmt.Fprintf(c.out, "%s %s (%s, temperature %.1f, num_ctx %d)\n",
		titleStyle.Render("Chatting with"), opts.Model, opts.Mode, opts.Temperature, opts.NumCtx)
	fmt.Fprintln(c.out, mutedStyle.Render("/clear resets the conversation, /exit quits"))

	for {
		line, err := in.ReadLine(">>> ")
		if err != nil {
			switch {
			case errors.Is(err, readline.ErrInterrupt):
				continue
			case errors.Is(err, io.EOF):
				return nil
			default:
				return fmt.Errorf("read input: %w", err)
			}
		}
		input := strings.TrimSpace(line)
		switch input {
		case "":
			continue
		case "/exit", "/bye":
			return nil
		case "/clear":
			c.state.ClearTranscript()
			fmt.Fprintln(c.out, mutedStyle.Render("Conversation cleared"))
			continue
		}
		if err := c.turn(ctx, input); err != nil {
			fmt.Fprintln(c.out, errorStyle.Render("Error generating response: "+ollama.ErrorMessage(err)))
		}
	}
}

// turn sends one prompt. The transcript only grows when the answer completes.
func (c *chatSession) turn(ctx context.Context, prompt string) error {
	opts := c.state.ChatOptions()
	history := c.state.Transcript()

	var (
		res stream.TextResult
		err error
	)
	if opts.Stream {
		res, err = c.streamTurn(ctx, opts, history, prompt)
	} else {
		res, err = c.bufferedTurn(ctx, opts, history, prompt)
	}
	if err != nil {
		return err
	}

	if c.render || !opts.Stream {
		fmt.Fprintln(c.out, c.format(res.Text))
	}
	if tps := res.TokensPerSecond(); tps > 0 {
		fmt.Fprintln(c.out, mutedStyle.Render(fmt.Sprintf("%.1f tokens/s", tps)))
	}
	c.state.AppendMessage("user", prompt)
	c.state.AppendMessage("assistant", res.Text)
	return nil
}

func (c *chatSession) streamTurn(ctx context.Context, opts session.ChatOptions, history []ollama.Message, prompt string) (stream.TextResult, error) {
	var (
		src *ollama.Stream
		err error
	)
	if opts.Mode == stream.ModeChat {
		src, err = c.client.Chat(ctx, opts.ChatRequest(opts.Model, history, prompt))
	} else {
		src, err = c.client.Generate(ctx, opts.GenerateRequest(opts.Model, history, prompt))
	}
	if err != nil {
		return stream.TextResult{}, err
	}
	defer src.Close()

	res, err := stream.FoldText(src, stream.NewTextFolder(opts.Mode), func(_, fragment string) {
		if !c.render {
			fmt.Fprint(c.out, fragment)
		}
	})
	if !c.render && res.Fragments > 0 {
		fmt.Fprintln(c.out)
	}
	return res, err
}

func (c *chatSession) bufferedTurn(ctx context.Context, opts session.ChatOptions, history []ollama.Message, prompt string) (stream.TextResult, error) {
	if opts.Mode == stream.ModeChat {
		resp, err := c.client.ChatBuffered(ctx, opts.ChatRequest(opts.Model, history, prompt))
		if err != nil {
			return stream.TextResult{}, err
		}
		return stream.TextResult{Text: resp.Message.Content, Done: resp.Done, EvalCount: int64(resp.EvalCount), EvalDuration: time.Duration(resp.EvalDuration)}, nil
	}
	resp, err := c.client.GenerateBuffered(ctx, opts.GenerateRequest(opts.Model, history, prompt))
	if err != nil {
		return stream.TextResult{}, err
	}
	return stream.TextResult{Text: resp.Response, Done: resp.Done, EvalCount: int64(resp.EvalCount), EvalDuration: time.Duration(resp.EvalDuration)}, nil
}

func (c *chatSession) format(text string) string {
	if c.render {
		return renderMarkdown(text, 80)
	}
	return text
}

// renderMarkdown falls back to the raw text when glamour cannot render it.
func renderMarkdown(content string, width int) string {
	if strings.TrimSpace(content) == "" {
		return ""
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return content
	}
	rendered, err := r.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimRight(rendered, "\n")
}
