package console

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"vidcat/internal/failure"
	"vidcat/internal/models"
	"vidcat/internal/search"
	"vidcat/internal/stats"
	"vidcat/internal/store"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const recentCount = 6

// ErrQuit ends an interactive session.
var ErrQuit = errors.New("quit")

type Command struct {
	Name string
	Args []string
}

// PlaySource resolves playback links for search hits.
type PlaySource interface {
	PlayInfo(ctx context.Context, id models.ID) (models.PlayInfo, error)
}

// Handler turns commands into calls on the catalog store, the search
// controller and the stats aggregator, and renders their state. It holds no
// state of its own.
type Handler struct {
	store  *store.Store
	search *search.Controller
	stats  *stats.Aggregator
	player PlaySource
	logger *logrus.Logger
	out    io.Writer
}

func NewHandler(catalog *store.Store, searcher *search.Controller, aggregator *stats.Aggregator, player PlaySource, logger *logrus.Logger, out io.Writer) *Handler {
	return &Handler{
		store:  catalog,
		search: searcher,
		stats:  aggregator,
		player: player,
		logger: logger,
		out:    out,
	}
}

// ParseCommand splits a command line. Double or single quotes group words.
func ParseCommand(line string) (Command, error) {
	parts, err := splitArgs(line)
	if err != nil {
		return Command{}, err
	}
	if len(parts) == 0 {
		return Command{}, nil
	}
	return Command{Name: strings.ToLower(parts[0]), Args: parts[1:]}, nil
}

// Run reads commands from in until EOF or quit. Failed commands are reported
// and the session continues.
func (h *Handler) Run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	h.print("vidcat> ")
	for scanner.Scan() {
		cmd, err := ParseCommand(scanner.Text())
		if err != nil {
			h.printError(err)
		} else if cmd.Name != "" {
			if err := h.Execute(ctx, cmd); errors.Is(err, ErrQuit) {
				return nil
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		h.print("vidcat> ")
	}
	return scanner.Err()
}

// Execute runs one command. Errors are printed before they are returned.
func (h *Handler) Execute(ctx context.Context, cmd Command) error {
	h.logger.WithFields(logrus.Fields{
		"command": cmd.Name,
		"args":    cmd.Args,
	}).Debug("Processing command")

	var err error
	switch cmd.Name {
	case "help", "?":
		h.print(helpText)
	case "list", "ls":
		err = h.handleList(ctx, cmd)
	case "show":
		err = h.handleShow(ctx, cmd)
	case "add", "create":
		err = h.handleAdd(ctx, cmd)
	case "edit", "update":
		err = h.handleEdit(ctx, cmd)
	case "delete", "rm":
		err = h.handleDelete(ctx, cmd)
	case "progress":
		err = h.handleProgress(ctx, cmd)
	case "next":
		err = h.handleNextEpisode(ctx, cmd)
	case "search":
		err = h.handleSearch(ctx, cmd)
	case "filter":
		err = h.handleFilter(ctx, cmd)
	case "page":
		err = h.handlePage(ctx, cmd)
	case "stats":
		h.print(FormatStats(h.stats.Snapshot(ctx)))
	case "dashboard":
		err = h.handleDashboard(ctx)
	case "play":
		err = h.handlePlay(ctx, cmd)
	case "quit", "exit":
		return ErrQuit
	default:
		err = fmt.Errorf("unknown command %q, try help", cmd.Name)
		h.printError(err)
		return err
	}

	if err != nil && !errors.Is(err, search.ErrSuperseded) {
		h.printError(err)
	}
	return err
}

func (h *Handler) handleList(ctx context.Context, cmd Command) error {
	fs := newFlagSet("list", h.out)
	typ := fs.String("type", "", "series, movie or animation")
	status := fs.String("status", "", "planned, watching or completed")
	term := fs.String("q", "", "match title, director or actors")
	if err := fs.Parse(cmd.Args); err != nil {
		return usageFailure("list", err)
	}

	filter := store.ListFilter{Term: *term}
	if *typ != "" {
		t, err := models.ParseVideoType(*typ)
		if err != nil {
			return failure.Validation("list", err)
		}
		filter.Type = t
	}
	if *status != "" {
		st, err := models.ParseStatus(*status)
		if err != nil {
			return failure.Validation("list", err)
		}
		filter.Status = st
	}

	if err := h.store.Refresh(ctx); err != nil {
		return err
	}
	h.print(FormatVideoList(h.store.Filter(filter)))
	return nil
}

func (h *Handler) handleShow(ctx context.Context, cmd Command) error {
	id, err := requireID("show", cmd.Args)
	if err != nil {
		return err
	}

	v, err := h.store.Get(ctx, id)
	if err != nil {
		if failure.IsNotFound(err) {
			return failure.NotFound("show", "record not found")
		}
		return err
	}
	h.print(FormatVideo(v))
	return nil
}

func (h *Handler) handleAdd(ctx context.Context, cmd Command) error {
	fs := newFlagSet("add", h.out)
	rf := bindRecordFlags(fs)
	if err := fs.Parse(cmd.Args); err != nil {
		return usageFailure("add", err)
	}
	fields, err := rf.fields(fs)
	if err != nil {
		return failure.Validation("add", err)
	}

	v, err := h.store.Create(ctx, fields)
	if err != nil {
		return err
	}
	h.printf("Added %q as #%s.\n", v.Title, v.ID)
	return nil
}

func (h *Handler) handleEdit(ctx context.Context, cmd Command) error {
	id, err := requireID("edit", cmd.Args)
	if err != nil {
		return err
	}

	fs := newFlagSet("edit", h.out)
	rf := bindRecordFlags(fs)
	if err := fs.Parse(cmd.Args[1:]); err != nil {
		return usageFailure("edit", err)
	}
	fields, err := rf.fields(fs)
	if err != nil {
		return failure.Validation("edit", err)
	}

	v, err := h.store.Update(ctx, id, fields)
	if err != nil {
		return err
	}
	h.printf("Updated #%s.\n", v.ID)
	h.print(FormatVideo(v))
	return nil
}

func (h *Handler) handleDelete(ctx context.Context, cmd Command) error {
	id, err := requireID("delete", cmd.Args)
	if err != nil {
		return err
	}
	if err := h.store.Delete(ctx, id); err != nil {
		return err
	}
	h.printf("Deleted #%s.\n", id)
	return nil
}

func (h *Handler) handleProgress(ctx context.Context, cmd Command) error {
	if len(cmd.Args) != 2 {
		return failure.Validation("progress", errors.New("usage: progress <id> <episode>"))
	}
	episode, err := strconv.Atoi(cmd.Args[1])
	if err != nil {
		return failure.Validation("progress", fmt.Errorf("episode must be a number, got %q", cmd.Args[1]))
	}
	return h.advance(ctx, models.ID(cmd.Args[0]), episode)
}

func (h *Handler) handleNextEpisode(ctx context.Context, cmd Command) error {
	id, err := requireID("next", cmd.Args)
	if err != nil {
		return err
	}
	v, err := h.store.Get(ctx, id)
	if err != nil {
		return err
	}
	return h.advance(ctx, id, v.CurrentEpisode+1)
}

func (h *Handler) advance(ctx context.Context, id models.ID, episode int) error {
	v, err := h.store.AdvanceEpisode(ctx, id, episode)
	if err != nil {
		return err
	}
	h.printf("%s: episode %d of %d.\n", v.Title, v.CurrentEpisode, v.Episodes)
	return nil
}

func (h *Handler) handleSearch(ctx context.Context, cmd Command) error {
	fs := newFlagSet("search", h.out)
	ff := bindFilterFlags(fs)
	page := fs.Int("page", 1, "page to show")
	if err := fs.Parse(cmd.Args); err != nil {
		return usageFailure("search", err)
	}

	term := strings.Join(fs.Args(), " ")
	if visited(fs, "genre", "year", "sort") {
		filters, err := ff.apply(fs, h.search.Snapshot().Filters)
		if err != nil {
			return failure.Validation("search", err)
		}
		if _, err := h.search.SubmitFiltered(ctx, term, filters); err != nil {
			return err
		}
	} else if _, err := h.search.Submit(ctx, term); err != nil {
		return err
	}
	if *page > 1 {
		if _, err := h.search.GoToPage(ctx, *page); err != nil {
			return err
		}
	}
	h.print(FormatSearch(h.search.Snapshot()))
	return nil
}

func (h *Handler) handleFilter(ctx context.Context, cmd Command) error {
	fs := newFlagSet("filter", h.out)
	ff := bindFilterFlags(fs)
	if err := fs.Parse(cmd.Args); err != nil {
		return usageFailure("filter", err)
	}

	filters, err := ff.apply(fs, h.search.Snapshot().Filters)
	if err != nil {
		return failure.Validation("filter", err)
	}
	if _, err := h.search.SetFilters(ctx, filters); err != nil {
		return err
	}
	h.print(FormatSearch(h.search.Snapshot()))
	return nil
}

func (h *Handler) handlePage(ctx context.Context, cmd Command) error {
	if len(cmd.Args) != 1 {
		return failure.Validation("page", errors.New("usage: page <n>|next|prev"))
	}

	var err error
	switch arg := strings.ToLower(cmd.Args[0]); arg {
	case "next", "n":
		_, err = h.search.NextPage(ctx)
	case "prev", "p":
		_, err = h.search.PrevPage(ctx)
	default:
		n, convErr := strconv.Atoi(arg)
		if convErr != nil {
			return failure.Validation("page", fmt.Errorf("page must be a number, got %q", arg))
		}
		_, err = h.search.GoToPage(ctx, n)
	}
	if err != nil {
		return err
	}
	h.print(FormatSearch(h.search.Snapshot()))
	return nil
}

// handleDashboard reloads the catalog and the counters side by side.
func (h *Handler) handleDashboard(ctx context.Context) error {
	var snap models.StatsSnapshot

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return h.store.Refresh(gctx)
	})
	g.Go(func() error {
		snap = h.stats.Snapshot(gctx)
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	// A local fallback may have counted before the reload landed.
	if snap.Source == models.StatsRecomputed {
		snap = stats.Compute(h.store.Records())
	}
	h.print(FormatDashboard(snap, h.store.Recent(recentCount)))
	return nil
}

func (h *Handler) handlePlay(ctx context.Context, cmd Command) error {
	id, err := requireID("play", cmd.Args)
	if err != nil {
		return err
	}
	info, err := h.player.PlayInfo(ctx, id)
	if err != nil {
		return failure.As("play", err)
	}
	h.print(FormatPlayInfo(id, info))
	return nil
}

func (h *Handler) print(s string) {
	fmt.Fprint(h.out, s)
}

func (h *Handler) printf(format string, args ...any) {
	fmt.Fprintf(h.out, format, args...)
}

func (h *Handler) printError(err error) {
	fmt.Fprintln(h.out, red("Error: "+ErrorMessage(err)))
}

func requireID(op string, args []string) (models.ID, error) {
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" || strings.HasPrefix(args[0], "-") {
		return "", failure.Validation(op, errors.New("an id is required"))
	}
	return models.ID(strings.TrimSpace(args[0])), nil
}

func usageFailure(op string, err error) error {
	if errors.Is(err, flag.ErrHelp) {
		return failure.Validation(op, errors.New("see usage above"))
	}
	return failure.Validation(op, err)
}

const helpText = `Commands:
  list [-type T] [-status S] [-q TEXT]   list the catalog
  show ID                                show one video
  add -title T -type T [fields]          add a video
  edit ID [fields]                       change fields of a video
  delete ID                              delete a video
  progress ID EPISODE                    set the current episode
  next ID                                advance to the next episode
  search [-genre G] [-year Y] [-sort S] [-page N] TERM
  filter [-genre G] [-year Y] [-sort S]  change filters of the current search
  page N|next|prev                       move through search results
  play ID                                playback links for a search hit
  stats                                  catalog counters
  dashboard                              counters and recently added videos
  quit

Fields: -title -type -genre -year -director -actors -rating -description
        -poster -video -episodes -current -status
`
