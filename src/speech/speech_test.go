package speech

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

func TestSpeakPlaysInOrder(t *testing.T) {
	var mu sync.Mutex
	var spoken []string
	s := NewWithRunner(func(ctx context.Context, text string) error {
		mu.Lock()
		spoken = append(spoken, text)
		mu.Unlock()
		return nil
	})
	defer s.Close()

	s.Speak("one")
	s.Speak("  two  ")
	s.Speak("")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(spoken) == 2
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, []string{"one", "two"}, spoken)
}

func TestSpeakNeverBlocks(t *testing.T) {
	release := make(chan struct{})
	s := NewWithRunner(func(ctx context.Context, text string) error {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	})

	done := make(chan struct{})
	go func() {
		for i := 0; i < 20; i++ {
			s.Speak("utterance")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Speak blocked on a busy runner")
	}
	close(release)
	s.Close()
}

func TestRunnerErrorsAreSwallowed(t *testing.T) {
	calls := make(chan struct{}, 2)
	s := NewWithRunner(func(ctx context.Context, text string) error {
		calls <- struct{}{}
		if text == "boom" {
			panic("driver crashed")
		}
		return errors.New("device busy")
	})
	defer s.Close()

	s.Speak("boom")
	s.Speak("fail")
	for i := 0; i < 2; i++ {
		select {
		case <-calls:
		case <-time.After(time.Second):
			t.Fatal("expected both utterances to reach the runner")
		}
	}
}

func TestCloseIsIdempotentAndSpeakAfterCloseIsIgnored(t *testing.T) {
	s := NewWithRunner(func(ctx context.Context, text string) error { return nil })
	s.Close()
	s.Close()
	s.Speak("ignored")
}

func TestSpeakTruncatesLongText(t *testing.T) {
	got := make(chan string, 1)
	s := NewWithRunner(func(ctx context.Context, text string) error {
		got <- text
		return nil
	})
	defer s.Close()

	s.Speak(strings.Repeat("a", maxChars+100))
	select {
	case text := <-got:
		require.Len(t, text, maxChars)
	case <-time.After(time.Second):
		t.Fatal("utterance not played")
	}
}

func TestResolveCommand(t *testing.T) {
	available := func(names ...string) func(string) (string, error) {
		return func(name string) (string, error) {
			for _, n := range names {
				if n == name {
					return "/usr/bin/" + name, nil
				}
			}
			return "", errors.New("not found")
		}
	}

	cmd, err := resolveCommand("", "linux", available("espeak", "spd-say"))
	require.NoError(t, err)
	require.Equal(t, "espeak", cmd.name)

	cmd, err = resolveCommand("", "darwin", available("say"))
	require.NoError(t, err)
	require.Equal(t, "say", cmd.name)

	cmd, err = resolveCommand("", "windows", available("powershell"))
	require.NoError(t, err)
	require.True(t, cmd.stdin)

	cmd, err = resolveCommand("piper --model en", "linux", available("piper"))
	require.NoError(t, err)
	require.Equal(t, "piper", cmd.name)
	require.Equal(t, []string{"--model", "en"}, cmd.args)
	require.True(t, cmd.stdin)

	_, err = resolveCommand("", "linux", available())
	require.Error(t, err)

	_, err = resolveCommand("missing-tts", "linux", available("espeak"))
	require.Error(t, err)
}

func TestReplyNeverParsedAsOption(t *testing.T) {
	const reply = "-w/tmp/out.wav hello"
	ctx := context.Background()

	for _, goos := range []string{"linux", "darwin", "windows"} {
		for _, cs := range platformCommands(goos) {
			t.Run(goos+"/"+cs.name, func(t *testing.T) {
				cmd := cs.command(ctx, reply)
				args := cmd.Args[1:]
				if cs.stdin {
					require.NotContains(t, args, reply)
					b, err := io.ReadAll(cmd.Stdin)
					require.NoError(t, err)
					require.Equal(t, reply, string(b))
					return
				}
				require.GreaterOrEqual(t, len(args), 2)
				require.Equal(t, []string{"--", reply}, args[len(args)-2:])
			})
		}
	}
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	text := "a" + strings.Repeat("é", 1500)
	got := truncate(text, maxChars)
	require.True(t, utf8.ValidString(got))
	require.LessOrEqual(t, len(got), maxChars)
	require.Equal(t, maxChars-1, len(got))

	require.Equal(t, "short", truncate("short", maxChars))
}
