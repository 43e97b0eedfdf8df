package model

import "regexp"

var videoIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:youtube\.com/watch\?v=|youtu\.be/)([^&\s?#]+)`),
	regexp.MustCompile(`youtube\.com/embed/([^&\s?#]+)`),
}

// VideoID extracts the YouTube video id from a watch, short or embed URL.
// It returns an empty string when the URL is not recognised.
func VideoID(url string) string {
	for _, re := range videoIDPatterns {
		if m := re.FindStringSubmatch(url); m != nil {
			return m[1]
		}
	}
	return ""
}
