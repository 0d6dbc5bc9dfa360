package audiobookshelf

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/h2non/gock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string {
	return &s
}

func fixtureServer(t *testing.T, fixture string) *httptest.Server {
	t.Helper()
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer abc123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		path, err := filepath.Abs(filepath.Join("testdata", fixture))
		if err != nil {
			t.Fatal(err)
		}
		f, err := os.Open(path)
		if err != nil {
			t.Fatal(err)
		}
		defer f.Close()
		w.WriteHeader(http.StatusOK)
		io.Copy(w, f)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func testClient(ts *httptest.Server) *Client {
	c := NewClient(ts.URL, "abc123")
	c.HTTPClient = ts.Client()
	return c
}

func TestCurrentSession_Handle500(t *testing.T) {
	t.Parallel()
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	_, ok, err := testClient(ts).CurrentSession(context.Background())
	require.Error(t, err)
	assert.False(t, ok)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
}

func TestCurrentSession_HandleMalformedResponse(t *testing.T) {
	t.Parallel()
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"sessions": [{"currentTime": "soon"`))
	}))
	defer ts.Close()

	_, ok, err := testClient(ts).CurrentSession(context.Background())
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestCurrentSession_NoSessions(t *testing.T) {
	t.Parallel()
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"total": 0, "sessions": []}`))
	}))
	defer ts.Close()

	_, ok, err := testClient(ts).CurrentSession(context.Background())
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestCurrentSession_SuccessBook(t *testing.T) {
	t.Parallel()
	ts := fixtureServer(t, "sessions_book.json")

	got, ok, err := testClient(ts).CurrentSession(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	want := Session{
		ID:            "play_c786zm3qtjz6bd5q3n",
		LibraryItemID: "li_bufnnmp4y5o2gbbxfm",
		MediaType:     MediaTypeBook,
		MediaMetadata: MediaMetadata{
			Title:  "Mistborn: The Final Empire (Mistborn, Book 1)",
			Genres: []string{"Fantasy", "Epic"},
		},
		Chapters: []Chapter{
			{ID: 0, Title: "Opening Credits", Start: 0, End: 120.5},
			{ID: 1, Title: "Prologue", Start: 120.5, End: 1840},
		},
		DisplayTitle:  "Mistborn: The Final Empire (Mistborn, Book 1)",
		DisplayAuthor: "Brandon Sanderson",
		Duration:      86012.34,
		CurrentTime:   1342.77,
		UpdatedAt:     1729300312000,
	}
	if !cmp.Equal(want, got) {
		t.Error(cmp.Diff(want, got))
	}
	assert.False(t, got.IsPodcast())
	_, isPodcast := got.PodcastName()
	assert.False(t, isPodcast)
}

func TestCurrentSession_SuccessPodcast(t *testing.T) {
	t.Parallel()
	ts := fixtureServer(t, "sessions_podcast.json")

	got, ok, err := testClient(ts).CurrentSession(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	assert.True(t, got.IsPodcast())
	assert.Equal(t, strPtr("ep_0042"), got.EpisodeID)
	name, ok := got.PodcastName()
	assert.True(t, ok)
	assert.Equal(t, "Daily News", name)
	assert.Equal(t, "2", got.MediaMetadata.SeasonNumber())
	assert.Equal(t, "5", got.MediaMetadata.EpisodeNumber())
	assert.Equal(t, "Markets Rally on Friday", got.DisplayTitle)
}

func TestItemChapters(t *testing.T) {
	t.Parallel()
	var gotPath, gotInclude string
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotInclude = r.URL.Query().Get("include")
		f, _ := os.Open(filepath.Join("testdata", "item_chapters.json"))
		defer f.Close()
		io.Copy(w, f)
	}))
	defer ts.Close()

	got, err := testClient(ts).ItemChapters(context.Background(), "li_bufnnmp4y5o2gbbxfm")
	require.NoError(t, err)
	assert.Equal(t, "/api/items/li_bufnnmp4y5o2gbbxfm", gotPath)
	assert.Equal(t, "chapters", gotInclude)
	want := []Chapter{
		{ID: 0, Title: "Intro", Start: 0, End: 120},
		{ID: 1, Title: "Chapter 2", Start: 120, End: 600},
	}
	if !cmp.Equal(want, got) {
		t.Error(cmp.Diff(want, got))
	}
}

func TestItemChapters_EmptyID(t *testing.T) {
	t.Parallel()
	c := NewClient("https://example.com", "abc123")
	_, err := c.ItemChapters(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyItemID)
}

func TestFetchCover(t *testing.T) {
	t.Parallel()
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("width") != "400" || r.URL.Query().Get("format") != "jpeg" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		switch r.URL.Path {
		case "/api/items/li_1/cover":
			w.Header().Set("Content-Type", "image/jpeg")
			w.Write([]byte{0xff, 0xd8, 0xff, 0xe0})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer ts.Close()
	c := testClient(ts)

	body, ok, err := c.FetchCover(context.Background(), "li_1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte{0xff, 0xd8, 0xff, 0xe0}, body)

	body, ok, err = c.FetchCover(context.Background(), "li_missing")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, body)
}

func TestCoverURL(t *testing.T) {
	t.Parallel()
	c := NewClient("https://example.com", "abc123")
	want := "https://example.com/api/items/li_1/cover?format=jpeg&width=400"
	got := c.CoverURL("li_1")
	if !cmp.Equal(want, got) {
		t.Error(cmp.Diff(want, got))
	}
	assert.NotContains(t, got, "abc123")
}

func TestSearchCover(t *testing.T) {
	c := NewClient("http://abs.example.com", "abc123")
	defer gock.Off()
	gock.InterceptClient(c.HTTPClient)
	defer gock.RestoreClient(c.HTTPClient)

	gock.New("http://abs.example.com").
		Get("/api/search/covers").
		MatchParam("title", "Mistborn").
		MatchParam("author", "Brandon Sanderson").
		MatchParam("provider", "audible").
		MatchHeader("Authorization", "Bearer abc123").
		Reply(200).
		JSON(map[string][]string{"results": {"https://m.media-amazon.com/images/I/mistborn.jpg"}})

	gock.New("http://abs.example.com").
		Get("/api/search/covers").
		MatchParam("provider", "google").
		Reply(200).
		JSON(map[string][]string{"results": {}})

	got, ok, err := c.SearchCover(context.Background(), "Mistborn", "Brandon Sanderson", "audible")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "https://m.media-amazon.com/images/I/mistborn.jpg", got)

	got, ok, err = c.SearchCover(context.Background(), "Mistborn", "Brandon Sanderson", "google")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, got)

	assert.True(t, gock.IsDone())
}

func TestSession_ChapterAt(t *testing.T) {
	t.Parallel()
	s := Session{Chapters: []Chapter{
		{Title: "Intro", Start: 0, End: 120},
		{Title: "Chapter 2", Start: 120, End: 600},
	}}

	c, ok := s.ChapterAt(45)
	assert.True(t, ok)
	assert.Equal(t, "Intro", c.Title)

	c, ok = s.ChapterAt(150)
	assert.True(t, ok)
	assert.Equal(t, "Chapter 2", c.Title)

	_, ok = s.ChapterAt(601)
	assert.False(t, ok)
}

func TestSession_PrimaryGenre(t *testing.T) {
	t.Parallel()
	g, ok := Session{MediaMetadata: MediaMetadata{Genres: []string{"", "Horror"}}}.PrimaryGenre()
	assert.True(t, ok)
	assert.Equal(t, "Horror", g)

	_, ok = Session{}.PrimaryGenre()
	assert.False(t, ok)
}
