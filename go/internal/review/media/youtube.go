package media

import (
	"errors"
	"regexp"
)

var ErrInvalidVideoURL = errors.New("invalid YouTube URL")

var youtubeIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:youtube\.com/watch\?v=|youtu\.be/|youtube\.com/embed/|youtube\.com/shorts/)([^&\n?#/]+)`),
	regexp.MustCompile(`youtube\.com/watch\?.*v=([^&\n?#]+)`),
}

// YouTubeVideoID extracts the video id from watch, short-link, embed and shorts URLs.
func YouTubeVideoID(url string) (string, error) {
	if url == "" {
		return "", ErrInvalidVideoURL
	}
	for _, re := range youtubeIDPatterns {
		if m := re.FindStringSubmatch(url); len(m) > 1 && m[1] != "" {
			return m[1], nil
		}
	}
	return "", ErrInvalidVideoURL
}
