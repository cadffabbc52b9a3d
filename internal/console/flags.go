package console

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"vidcat/internal/models"
)

func newFlagSet(name string, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	return fs
}

// visited reports whether any of names was given on the command line.
func visited(fs *flag.FlagSet, names ...string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		for _, n := range names {
			if f.Name == n {
				found = true
			}
		}
	})
	return found
}

// recordFlags hold raw text so that only flags actually given end up in the
// patch, and so numbers are validated with a useful message.
type recordFlags struct {
	title, typ, genre, year, director, actors, rating string
	description, poster, video, episodes, current     string
	status                                            string
}

func bindRecordFlags(fs *flag.FlagSet) *recordFlags {
	rf := &recordFlags{}
	fs.StringVar(&rf.title, "title", "", "title")
	fs.StringVar(&rf.typ, "type", "", "series, movie or animation")
	fs.StringVar(&rf.genre, "genre", "", "genre")
	fs.StringVar(&rf.year, "year", "", "release year")
	fs.StringVar(&rf.director, "director", "", "director")
	fs.StringVar(&rf.actors, "actors", "", "comma separated cast")
	fs.StringVar(&rf.rating, "rating", "", "rating from 0 to 10")
	fs.StringVar(&rf.description, "description", "", "description")
	fs.StringVar(&rf.poster, "poster", "", "poster URL")
	fs.StringVar(&rf.video, "video", "", "video URL")
	fs.StringVar(&rf.episodes, "episodes", "", "episode count")
	fs.StringVar(&rf.current, "current", "", "current episode")
	fs.StringVar(&rf.status, "status", "", "planned, watching or completed")
	return rf
}

// fields converts the flags that were set into a patch.
func (rf *recordFlags) fields(fs *flag.FlagSet) (models.VideoFields, error) {
	var out models.VideoFields
	var errs []error

	fs.Visit(func(f *flag.Flag) {
		var err error
		switch f.Name {
		case "title":
			out.Title = &rf.title
		case "type":
			var t models.VideoType
			if t, err = models.ParseVideoType(rf.typ); err == nil {
				out.Type = &t
			}
		case "genre":
			out.Genre = &rf.genre
		case "year":
			out.Year, err = parseIntFlag("year", rf.year)
		case "director":
			out.Director = &rf.director
		case "actors":
			out.Actors = &rf.actors
		case "rating":
			var r float64
			if r, err = strconv.ParseFloat(strings.TrimSpace(rf.rating), 64); err == nil {
				out.Rating = &r
			} else {
				err = fmt.Errorf("rating must be a number, got %q", rf.rating)
			}
		case "description":
			out.Description = &rf.description
		case "poster":
			out.PosterURL = &rf.poster
		case "video":
			out.VideoURL = &rf.video
		case "episodes":
			out.Episodes, err = parseIntFlag("episodes", rf.episodes)
		case "current":
			out.CurrentEpisode, err = parseIntFlag("current", rf.current)
		case "status":
			var st models.Status
			if st, err = models.ParseStatus(rf.status); err == nil {
				out.Status = &st
			}
		}
		if err != nil {
			errs = append(errs, err)
		}
	})

	return out, errors.Join(errs...)
}

func parseIntFlag(name, raw string) (*int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%s must be a whole number, got %q", name, raw)
	}
	return &n, nil
}

type filterFlags struct {
	genre string
	year  int
	sort  string
}

func bindFilterFlags(fs *flag.FlagSet) *filterFlags {
	ff := &filterFlags{}
	fs.StringVar(&ff.genre, "genre", "", "genre, empty for any")
	fs.IntVar(&ff.year, "year", 0, "release year, 0 for any")
	fs.StringVar(&ff.sort, "sort", "", "relevance, newest or rating")
	return ff
}

// apply overrides current with the filter flags that were given.
func (ff *filterFlags) apply(fs *flag.FlagSet, current models.FilterSet) (models.FilterSet, error) {
	out := current
	var err error
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "genre":
			out.Genre = strings.TrimSpace(ff.genre)
		case "year":
			out.Year = ff.year
		case "sort":
			if ff.sort == "" {
				out.Sort = ""
				return
			}
			out.Sort, err = models.ParseSortMode(ff.sort)
		}
	})
	return out, err
}

// splitArgs splits a line on whitespace. Single or double quotes group words
// and a backslash escapes the next character outside single quotes.
func splitArgs(line string) ([]string, error) {
	var (
		args    []string
		current strings.Builder
		inWord  bool
		quote   rune
		escaped bool
	)

	for _, r := range line {
		switch {
		case escaped:
			current.WriteRune(r)
			escaped = false
		case r == '\\' && quote != '\'':
			escaped = true
			inWord = true
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				current.WriteRune(r)
			}
		case r == '"' || r == '\'':
			quote = r
			inWord = true
		case r == ' ' || r == '\t':
			if inWord {
				args = append(args, current.String())
				current.Reset()
				inWord = false
			}
		default:
			current.WriteRune(r)
			inWord = true
		}
	}

	if quote != 0 {
		return nil, fmt.Errorf("unterminated %c quote", quote)
	}
	if escaped {
		return nil, errors.New("trailing backslash")
	}
	if inWord {
		args = append(args, current.String())
	}
	return args, nil
}
