package presence

import (
	"fmt"
	"math"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/marcus-crane/earshot/audiobookshelf"
	"github.com/marcus-crane/earshot/playback"
)

type ActivityType int

// Discord activity types. Listening gets the "Listening to" header.
const (
	ActivityPlaying   ActivityType = 0
	ActivityListening ActivityType = 2
)

const (
	UnknownGenre = "Unknown Genre"

	maxFieldLength = 128
	minFieldLength = 2
)

// chapterWords are the prefixes that already mark a title as a chapter in
// the languages we see in audiobook metadata.
var chapterWords = []string{
	"chapter",
	"chap.",
	"ch.",
	"capítulo",
	"capitulo",
	"chapitre",
	"kapitel",
	"capitolo",
	"hoofdstuk",
	"rozdział",
	"rozdzial",
	"kapittel",
	"luku",
	"глава",
	"章",
	"第",
}

// Payload is everything Discord needs to render one presence.
type Payload struct {
	Type       ActivityType `json:"type"`
	Details    string       `json:"details"`
	State      string       `json:"state"`
	Start      *time.Time   `json:"start,omitempty"`
	End        *time.Time   `json:"end,omitempty"`
	LargeImage string       `json:"large_image,omitempty"`
	LargeText  string       `json:"large_text,omitempty"`
	Playing    bool         `json:"playing"`
}

type Input struct {
	// Session is nil when the server reports no session at all.
	Session      *audiobookshelf.Session
	Verdict      playback.Verdict
	Artwork      string
	ShowChapters bool
	Now          time.Time
}

// Build turns one tick's observations into a payload. A nil result means the
// presence should be cleared.
func Build(in Input) *Payload {
	if in.Session == nil {
		return nil
	}
	s := in.Session
	details, state := Lines(*s)

	p := &Payload{
		Type:    ActivityListening,
		Details: fitField(details),
		State:   fitField(state),
	}
	if !in.Verdict.Playing() {
		return p
	}

	position := math.Max(in.Verdict.Position, 0)
	duration := math.Max(s.Duration, position)
	start := in.Now.Add(-seconds(position))
	end := start.Add(seconds(duration))
	p.Start = &start
	p.End = &end
	p.Playing = true

	p.LargeImage = in.Artwork
	p.LargeText = fitField(Caption(*s, position, in.ShowChapters))
	return p
}

// Lines picks the primary and secondary lines. Podcasts show the show name up
// top when the server gives us one so the episode title doesn't take over.
func Lines(s audiobookshelf.Session) (string, string) {
	if s.IsPodcast() {
		if name, ok := s.PodcastName(); ok && name != s.DisplayTitle {
			return name, s.DisplayTitle
		}
	}
	return s.DisplayTitle, s.DisplayAuthor
}

// Caption is the hover text for the cover image.
func Caption(s audiobookshelf.Session, position float64, showChapters bool) string {
	if name, ok := s.PodcastName(); ok {
		season := s.MediaMetadata.SeasonNumber()
		episode := s.MediaMetadata.EpisodeNumber()
		switch {
		case season != "" && episode != "":
			return fmt.Sprintf("%s - S%sE%s", name, season, episode)
		case episode != "":
			return fmt.Sprintf("%s - Episode %s", name, episode)
		default:
			return name
		}
	}

	if showChapters {
		if c, ok := s.ChapterAt(position); ok && strings.TrimSpace(c.Title) != "" {
			return ChapterLabel(c.Title)
		}
	}

	if genre, ok := s.PrimaryGenre(); ok {
		return genre
	}
	return UnknownGenre
}

// ChapterLabel prefixes "Chapter " unless the title already names itself a chapter.
func ChapterLabel(title string) string {
	title = strings.TrimSpace(title)
	lower := strings.ToLower(title)
	for _, word := range chapterWords {
		if !strings.HasPrefix(lower, word) {
			continue
		}
		if needsBoundary(word) {
			next, _ := utf8.DecodeRuneInString(lower[len(word):])
			if next != utf8.RuneError && unicode.IsLetter(next) {
				continue
			}
		}
		return title
	}
	return "Chapter " + title
}

// needsBoundary stops "Chapterhouse" counting as a chapter word. Han
// prefixes like 第 are followed directly by numerals so they are exempt.
func needsBoundary(word string) bool {
	last, _ := utf8.DecodeLastRuneInString(word)
	return unicode.IsLetter(last) && !unicode.Is(unicode.Han, last)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// fitField keeps a line within what Discord accepts: at most 128 bytes, at
// least 2 characters.
func fitField(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxFieldLength {
		cut := maxFieldLength - len("…")
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut] + "…"
	}
	if s != "" && utf8.RuneCountInString(s) < minFieldLength {
		s += " "
	}
	return s
}
