package audiobookshelf

const (
	MediaTypeBook    = "book"
	MediaTypePodcast = "podcast"
)

type ListeningSessionsResponse struct {
	Total        int       `json:"total"`
	NumPages     int       `json:"numPages"`
	ItemsPerPage int       `json:"itemsPerPage"`
	Sessions     []Session `json:"sessions"`
}

// Session is the server's snapshot of the most recent listening activity.
// Times are in seconds.
type Session struct {
	ID            string        `json:"id"`
	LibraryItemID string        `json:"libraryItemId"`
	EpisodeID     *string       `json:"episodeId"`
	MediaType     string        `json:"mediaType"`
	MediaMetadata MediaMetadata `json:"mediaMetadata"`
	Chapters      []Chapter     `json:"chapters"`
	DisplayTitle  string        `json:"displayTitle"`
	DisplayAuthor string        `json:"displayAuthor"`
	Duration      float64       `json:"duration"`
	CurrentTime   float64       `json:"currentTime"`
	UpdatedAt     int64         `json:"updatedAt"`
}

// MediaMetadata differs between server versions and media types. Anything not
// always present is a pointer so absence is distinguishable from empty.
type MediaMetadata struct {
	Title        string   `json:"title"`
	Author       *string  `json:"author"`
	Genres       []string `json:"genres"`
	PodcastTitle *string  `json:"podcastTitle"`
	Season       *string  `json:"season"`
	Episode      *string  `json:"episode"`
}

type Chapter struct {
	ID    int     `json:"id"`
	Title string  `json:"title"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type LibraryItem struct {
	ID        string `json:"id"`
	MediaType string `json:"mediaType"`
	Media     Media  `json:"media"`
}

type Media struct {
	Chapters []Chapter `json:"chapters"`
}

type CoverSearchResponse struct {
	Results []string `json:"results"`
}

func (s Session) IsPodcast() bool {
	return s.MediaType == MediaTypePodcast
}

// PodcastName prefers the explicit podcastTitle field. Older servers only put
// the show name in the metadata title for podcast sessions.
func (s Session) PodcastName() (string, bool) {
	if s.MediaMetadata.PodcastTitle != nil && *s.MediaMetadata.PodcastTitle != "" {
		return *s.MediaMetadata.PodcastTitle, true
	}
	if s.IsPodcast() && s.MediaMetadata.Title != "" {
		return s.MediaMetadata.Title, true
	}
	return "", false
}

func (s Session) PrimaryGenre() (string, bool) {
	for _, g := range s.MediaMetadata.Genres {
		if g != "" {
			return g, true
		}
	}
	return "", false
}

// ChapterAt returns the chapter whose [start, end] window holds position.
func (s Session) ChapterAt(position float64) (Chapter, bool) {
	for _, c := range s.Chapters {
		if position >= c.Start && position <= c.End {
			return c, true
		}
	}
	return Chapter{}, false
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (m MediaMetadata) SeasonNumber() string {
	return stringValue(m.Season)
}

func (m MediaMetadata) EpisodeNumber() string {
	return stringValue(m.Episode)
}
