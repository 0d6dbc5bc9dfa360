package presence

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcus-crane/earshot/audiobookshelf"
	"github.com/marcus-crane/earshot/playback"
)

var now = time.Date(2024, 10, 19, 9, 0, 0, 0, time.UTC)

func strPtr(s string) *string {
	return &s
}

func bookSession() *audiobookshelf.Session {
	return &audiobookshelf.Session{
		LibraryItemID: "li_1",
		MediaType:     audiobookshelf.MediaTypeBook,
		DisplayTitle:  "The Hobbit",
		DisplayAuthor: "J. R. R. Tolkien",
		Duration:      600,
		MediaMetadata: audiobookshelf.MediaMetadata{Genres: []string{"Fantasy"}},
		Chapters: []audiobookshelf.Chapter{
			{Title: "Intro", Start: 0, End: 120},
			{Title: "Chapter 2", Start: 120, End: 600},
		},
	}
}

func playing(position float64) playback.Verdict {
	return playback.Verdict{Status: playback.StatusPlaying, Position: position}
}

func TestBuild_NoSessionClears(t *testing.T) {
	t.Parallel()
	assert.Nil(t, Build(Input{Now: now}))
}

func TestBuild_PausedHasNoTimestamps(t *testing.T) {
	t.Parallel()
	p := Build(Input{
		Session: bookSession(),
		Verdict: playback.Verdict{Status: playback.StatusPaused, Position: 45},
		Artwork: "https://i.imgur.com/x.jpeg",
		Now:     now,
	})
	require.NotNil(t, p)
	assert.Equal(t, "The Hobbit", p.Details)
	assert.Equal(t, "J. R. R. Tolkien", p.State)
	assert.Nil(t, p.Start)
	assert.Nil(t, p.End)
	assert.Empty(t, p.LargeImage)
	assert.False(t, p.Playing)
}

func TestBuild_PlayingHasProgressWindow(t *testing.T) {
	t.Parallel()
	p := Build(Input{
		Session: bookSession(),
		Verdict: playing(45),
		Artwork: "https://i.imgur.com/x.jpeg",
		Now:     now,
	})
	require.NotNil(t, p)
	require.NotNil(t, p.Start)
	require.NotNil(t, p.End)
	assert.Equal(t, now.Add(-45*time.Second), *p.Start)
	assert.Equal(t, now.Add(-45*time.Second).Add(600*time.Second), *p.End)
	assert.Equal(t, ActivityListening, p.Type)
	assert.Equal(t, "https://i.imgur.com/x.jpeg", p.LargeImage)
	assert.Equal(t, "Fantasy", p.LargeText)
	assert.True(t, p.Playing)
}

func TestBuild_ChapterCaption(t *testing.T) {
	t.Parallel()
	in := Input{Session: bookSession(), Verdict: playing(45), Artwork: "a", ShowChapters: true, Now: now}
	assert.Equal(t, "Chapter Intro", Build(in).LargeText)

	in.Verdict = playing(150)
	assert.Equal(t, "Chapter 2", Build(in).LargeText)

	in.ShowChapters = false
	assert.Equal(t, "Fantasy", Build(in).LargeText)
}

func TestCaption_PodcastPrecedence(t *testing.T) {
	t.Parallel()
	s := audiobookshelf.Session{
		MediaType:    audiobookshelf.MediaTypePodcast,
		DisplayTitle: "Markets Rally",
		MediaMetadata: audiobookshelf.MediaMetadata{
			PodcastTitle: strPtr("Daily News"),
			Season:       strPtr("2"),
			Episode:      strPtr("5"),
			Genres:       []string{"News"},
		},
		Chapters: []audiobookshelf.Chapter{{Title: "Headlines", Start: 0, End: 100}},
	}
	assert.Equal(t, "Daily News - S2E5", Caption(s, 10, true))

	s.MediaMetadata.Season = nil
	assert.Equal(t, "Daily News - Episode 5", Caption(s, 10, true))

	s.MediaMetadata.Episode = nil
	assert.Equal(t, "Daily News", Caption(s, 10, true))
}

func TestCaption_GenreFallback(t *testing.T) {
	t.Parallel()
	s := *bookSession()
	assert.Equal(t, "Fantasy", Caption(s, 700, true))

	s.MediaMetadata.Genres = nil
	assert.Equal(t, UnknownGenre, Caption(s, 700, true))
}

func TestLines_PodcastPrefersShowTitle(t *testing.T) {
	t.Parallel()
	s := audiobookshelf.Session{
		MediaType:     audiobookshelf.MediaTypePodcast,
		DisplayTitle:  "Markets Rally",
		DisplayAuthor: "Newsroom",
		MediaMetadata: audiobookshelf.MediaMetadata{PodcastTitle: strPtr("Daily News")},
	}
	details, state := Lines(s)
	assert.Equal(t, "Daily News", details)
	assert.Equal(t, "Markets Rally", state)

	s.MediaMetadata.PodcastTitle = nil
	details, state = Lines(s)
	assert.Equal(t, "Markets Rally", details)
	assert.Equal(t, "Newsroom", state)
}

func TestChapterLabel(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"Intro":          "Chapter Intro",
		"Chapter 2":      "Chapter 2",
		"CHAPTER ONE":    "CHAPTER ONE",
		"Capítulo 3":     "Capítulo 3",
		"Chapitre 4":     "Chapitre 4",
		"Kapitel 5":      "Kapitel 5",
		"Глава 6":        "Глава 6",
		"第七章":            "第七章",
		"Chapterhouse":   "Chapter Chapterhouse",
		"12":             "Chapter 12",
		"  Prologue   ":  "Chapter Prologue",
		"Hoofdstuk 8":    "Hoofdstuk 8",
		"Capitolo nove":  "Capitolo nove",
		"Rozdział drugi": "Rozdział drugi",
	}
	for in, want := range cases {
		assert.Equal(t, want, ChapterLabel(in), in)
	}
}

func TestFitField(t *testing.T) {
	t.Parallel()
	long := strings.Repeat("é", 100)
	got := fitField(long)
	assert.LessOrEqual(t, len(got), maxFieldLength)
	assert.True(t, utf8.ValidString(got))
	assert.True(t, strings.HasSuffix(got, "…"))

	assert.Equal(t, "A ", fitField("A"))
	assert.Equal(t, "", fitField(""))
}
