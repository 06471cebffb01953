// Package feed renders the per-channel RSS feed from a parsed channel
// document, invoked by the scheduler after a successful install.
package feed

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"sort"
	"time"
)

// Package is one entry in a channel document's `packages` or
// `packages.conda` map.
type Package struct {
	Name        string
	Version     string      `json:"version"`
	Subdirs     []string    `json:"subdirs"`
	Description string      `json:"description"`
	Summary     string      `json:"summary"`
	DocURL      string      `json:"doc_url"`
	DevURL      string      `json:"dev_url"`
	SourceURL   string      `json:"source_url"`
	Home        string      `json:"home"`
	Timestamp   json.Number `json:"timestamp"`
}

func (p Package) timestampSeconds() float64 {
	f, _ := p.Timestamp.Float64()
	return f
}

// ChannelDocument is the decoded channeldata.json shape: a JSON blob
// describing all packages in the channel.
type ChannelDocument struct {
	Packages       map[string]Package `json:"packages"`
	PackagesConda  map[string]Package `json:"packages.conda"`
}

// ParseChannelDocument decodes the installed channeldata.json body.
func ParseChannelDocument(body []byte) (*ChannelDocument, error) {
	var doc ChannelDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("parse channel document: %w", err)
	}
	return &doc, nil
}

// RecentPackages returns packages whose timestamp is within thresholdDays of
// now, newest first. thresholdDays < 0 means "include everything".
func RecentPackages(doc *ChannelDocument, thresholdDays int) []Package {
	var all []Package
	for name, pkg := range doc.Packages {
		pkg.Name = name
		all = append(all, pkg)
	}
	for name, pkg := range doc.PackagesConda {
		pkg.Name = name
		all = append(all, pkg)
	}

	var cutoff float64 = -1
	if thresholdDays >= 0 {
		cutoff = float64(time.Now().Add(-time.Duration(thresholdDays) * 24 * time.Hour).Unix())
	}

	var recent []Package
	for _, pkg := range all {
		if cutoff < 0 || pkg.timestampSeconds() > cutoff {
			recent = append(recent, pkg)
		}
	}
	sort.Slice(recent, func(i, j int) bool {
		return recent[i].timestampSeconds() > recent[j].timestampSeconds()
	})
	return recent
}

type rssFeed struct {
	XMLName xml.Name  `xml:"rss"`
	Version string    `xml:"version,attr"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title         string    `xml:"title"`
	Link          string    `xml:"link"`
	Description   string    `xml:"description"`
	PubDate       string    `xml:"pubDate"`
	LastBuildDate string    `xml:"lastBuildDate"`
	Items         []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Description string `xml:"description,omitempty"`
	Link        string `xml:"link,omitempty"`
	Comments    string `xml:"comments,omitempty"`
	GUID        string `xml:"guid,omitempty"`
	PubDate     string `xml:"pubDate,omitempty"`
	Source      string `xml:"source,omitempty"`
}

// iso822 formats t the way RSS 2.0 pubDate fields are conventionally
// rendered: RFC-822-ish, always in GMT.
func iso822(t time.Time) string {
	return t.UTC().Format("Mon, 02 Jan 2006 15:04:05 GMT")
}

func title(pkg Package) string {
	subdirs := append([]string(nil), pkg.Subdirs...)
	sort.Strings(subdirs)
	return fmt.Sprintf("%s %s [%s]", pkg.Name, pkg.Version, joinUnique(subdirs))
}

func joinUnique(subdirs []string) string {
	seen := map[string]struct{}{}
	var out []string
	for _, s := range subdirs {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	result := ""
	for i, s := range out {
		if i > 0 {
			result += ", "
		}
		result += s
	}
	return result
}

func coalesce(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Render produces a complete RSS 2.0 document for channel: a channel header
// plus one item per recent package.
func Render(channel string, doc *ChannelDocument, thresholdDays int) (string, error) {
	packages := RecentPackages(doc, thresholdDays)
	now := time.Now()

	items := make([]rssItem, 0, len(packages))
	for _, pkg := range packages {
		var pub string
		if ts := pkg.timestampSeconds(); ts > 0 {
			pub = iso822(time.Unix(int64(ts), 0))
		}
		items = append(items, rssItem{
			Title:       title(pkg),
			Description: coalesce(pkg.Description, pkg.Summary),
			Link:        pkg.DocURL,
			Comments:    pkg.DevURL,
			GUID:        pkg.SourceURL,
			PubDate:     pub,
			Source:      pkg.Home,
		})
	}

	feed := rssFeed{
		Version: "2.0",
		Channel: rssChannel{
			Title:         fmt.Sprintf("anaconda.org/%s", channel),
			Link:          fmt.Sprintf("https://conda.anaconda.org/%s", channel),
			Description:   fmt.Sprintf("An anaconda.org community with %d package updates in the past %d days.", len(packages), thresholdDays),
			PubDate:       iso822(now),
			LastBuildDate: iso822(now),
			Items:         items,
		},
	}

	out, err := xml.MarshalIndent(feed, "", "    ")
	if err != nil {
		return "", fmt.Errorf("render rss: %w", err)
	}
	return xml.Header + string(out), nil
}
