package hoardlib

import "net/http"

// knownBadURLs maps placeholder media some hosts serve in place of a
// removed file to the status the response should have carried.
var knownBadURLs = map[string]int{
	"https://i.imgur.com/removed.png":              http.StatusNotFound,
	"https://saint2.su/assets/notfound.gif":        http.StatusNotFound,
	"https://bnkr.b-cdn.net/maintenance-vid.mp4":   http.StatusServiceUnavailable,
	"https://bnkr.b-cdn.net/maintenance.mp4":       http.StatusServiceUnavailable,
	"https://c.bunkr-cache.se/maintenance-vid.mp4": http.StatusServiceUnavailable,
	"https://c.bunkr-cache.se/maintenance.jpg":     http.StatusServiceUnavailable,
}

// badETags maps ETag values of known placeholder bodies to the message
// reported for them. Matching responses become 404 download errors
// before any bytes are written.
var badETags = map[string]string{
	`"d835884373f4d6c8f24742ceabe74946"`: "Imgur image has been removed",
	`d835884373f4d6c8f24742ceabe74946`:   "Imgur image has been removed",
}

// contentTypeOverrides fixes mislabeled types before the html/text gate.
var contentTypeOverrides = map[string]string{
	"text/vnd.trolltech.linguist": "video/MP2T",
}
