package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"moray/internal/config"
	"moray/internal/httputil"
	"moray/internal/media"
	"moray/internal/player"
	"moray/internal/provider"
	"moray/internal/resolver"
	"moray/internal/store"
	"moray/internal/ui"
)

var (
	flagSeason  int
	flagEpisode int
	flagTitle   string
)

// resolveRun is the default command: moray <content-id> [season episode]
func resolveRun(cmd *cobra.Command, args []string) error {
	key, err := buildKey(args)
	if err != nil {
		return err
	}

	debugf("resolving %s", key)

	dbPath, err := config.DatabasePath()
	if err != nil {
		return fmt.Errorf("locating database: %w", err)
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := resolver.New(provider.Ranked(cfg), st, cfg.CacheTTL())
	r.Debugf = debugf

	skip := flagSkip
	refresh := false
	for {
		result, err := r.Resolve(ctx, key, resolver.Options{
			ForceProvider: flagProvider,
			SkipProviders: skip,
			Refresh:       refresh,
		})
		if err != nil {
			return err
		}

		if flagJSON {
			out, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		}

		if !result.Resolved() {
			fmt.Fprintln(os.Stderr, result.Message)
			if result.FallbackEmbed != "" {
				fmt.Fprintf(os.Stderr, "last-resort embed: %s (run `moray serve` to intercept it)\n", result.FallbackEmbed)
			}
			return errors.New("resolution failed")
		}

		if result.WasCached {
			fmt.Printf("%s (%s, cached)\n", result.URL, result.ProviderID)
		} else {
			fmt.Printf("%s (%s)\n", result.URL, result.ProviderID)
		}

		if flagNoPlay {
			return nil
		}

		err = playResult(key, result)
		if !errors.Is(err, player.ErrExhausted) {
			return err
		}

		// Playback failed fatally: offer a retry, optionally dropping the
		// provider that produced the dead URL.
		choice, uiErr := ui.Select("Playback failed", []string{
			"Retry",
			"Retry skipping " + result.ProviderID,
			"Quit",
		})
		if uiErr != nil {
			return err
		}
		switch choice {
		case 0:
			refresh = true
		case 1:
			skip = append(skip, result.ProviderID)
			refresh = true
		default:
			return err
		}
	}
}

// buildKey turns positional args and flags into a resolution key. Season and
// episode may come positionally or via flags; either way their presence
// makes this a series key.
func buildKey(args []string) (media.ResolutionKey, error) {
	var key media.ResolutionKey

	if err := httputil.ValidateID(args[0]); err != nil {
		return key, fmt.Errorf("invalid content id: %w", err)
	}
	key.ContentID = args[0]
	key.AudioTrack = cfg.AudioTrack
	key.TitleHint = flagTitle
	key.Season = flagSeason
	key.Episode = flagEpisode

	if len(args) == 2 {
		return key, errors.New("season given without an episode")
	}
	if len(args) == 3 {
		season, err := strconv.Atoi(args[1])
		if err != nil {
			return key, fmt.Errorf("invalid season %q", args[1])
		}
		episode, err := strconv.Atoi(args[2])
		if err != nil {
			return key, fmt.Errorf("invalid episode %q", args[2])
		}
		key.Season, key.Episode = season, episode
	}

	if key.Season > 0 || key.Episode > 0 {
		if key.Season <= 0 || key.Episode <= 0 {
			return key, errors.New("series keys need both season and episode")
		}
		key.Type = media.Series
	} else {
		key.Type = media.Movie
	}
	return key, nil
}

// playResult hands the resolved URL to the configured player. Proxy results
// have no direct stream; point the user at the embed instead.
func playResult(key media.ResolutionKey, result *media.Result) error {
	if result.Kind == media.EmbeddedProxy {
		fmt.Fprintf(os.Stderr, "provider %s only offers an embed page; run `moray serve` to intercept it\n", result.ProviderID)
		return nil
	}

	title := flagTitle
	if title == "" {
		title = key.String()
	}

	p := player.New(cfg.Player)
	_, err := player.Play(p, []player.Candidate{{URL: result.URL, Label: result.ProviderID}}, title)
	if errors.Is(err, player.ErrExhausted) {
		fmt.Fprintf(os.Stderr, "playback failed; retry with --skip %s to try the next provider\n", result.ProviderID)
		return err
	}
	return err
}
