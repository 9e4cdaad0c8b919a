package stream

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	"github.com/vmunix/streamgrab/internal/media"
)

type mpd struct {
	XMLName xml.Name    `xml:"MPD"`
	Periods []mpdPeriod `xml:"Period"`
}

type mpdPeriod struct {
	AdaptationSets []mpdAdaptationSet `xml:"AdaptationSet"`
}

type mpdAdaptationSet struct {
	MimeType        string              `xml:"mimeType,attr"`
	Codecs          string              `xml:"codecs,attr"`
	SegmentTemplate *mpdSegmentTemplate `xml:"SegmentTemplate"`
	Representations []mpdRepresentation `xml:"Representation"`
}

type mpdRepresentation struct {
	ID              string              `xml:"id,attr"`
	Bandwidth       int                 `xml:"bandwidth,attr"`
	Codecs          string              `xml:"codecs,attr"`
	MimeType        string              `xml:"mimeType,attr"`
	SegmentTemplate *mpdSegmentTemplate `xml:"SegmentTemplate"`
}

type mpdSegmentTemplate struct {
	Initialization string              `xml:"initialization,attr"`
	Media          string              `xml:"media,attr"`
	StartNumber    *int                `xml:"startNumber,attr"`
	Timeline       *mpdSegmentTimeline `xml:"SegmentTimeline"`
}

type mpdSegmentTimeline struct {
	S []struct {
		D int64 `xml:"d,attr"`
		R int   `xml:"r,attr"`
	} `xml:"S"`
}

// parseDASH reads a single-period MPD using SegmentTemplate addressing and
// returns the highest-bandwidth representation's init and media URLs.
func parseDASH(data []byte) (*media.Manifest, error) {
	var doc mpd
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedManifest, err)
	}
	if len(doc.Periods) == 0 {
		return nil, fmt.Errorf("%w: no period", ErrMalformedManifest)
	}

	var (
		best    *mpdRepresentation
		bestSet *mpdAdaptationSet
	)
	for i := range doc.Periods[0].AdaptationSets {
		set := &doc.Periods[0].AdaptationSets[i]
		for j := range set.Representations {
			rep := &set.Representations[j]
			if best == nil || rep.Bandwidth > best.Bandwidth {
				best, bestSet = rep, set
			}
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: no representation", ErrMalformedManifest)
	}

	tmpl := best.SegmentTemplate
	if tmpl == nil {
		tmpl = bestSet.SegmentTemplate
	}
	if tmpl == nil || tmpl.Media == "" || tmpl.Timeline == nil {
		return nil, fmt.Errorf("%w: representation %q has no segment template", ErrMalformedManifest, best.ID)
	}

	count := 0
	for _, s := range tmpl.Timeline.S {
		count += 1 + max(s.R, 0)
	}

	start := 1
	if tmpl.StartNumber != nil {
		start = *tmpl.StartNumber
	}

	urls := make([]string, 0, count+1)
	if tmpl.Initialization != "" {
		urls = append(urls, expandTemplate(tmpl.Initialization, best, 0))
	}
	for n := start; n < start+count; n++ {
		urls = append(urls, expandTemplate(tmpl.Media, best, n))
	}

	codec := best.Codecs
	if codec == "" {
		codec = bestSet.Codecs
	}
	mime := best.MimeType
	if mime == "" {
		mime = bestSet.MimeType
	}

	return &media.Manifest{URLs: urls, MimeType: mime, Codec: codec}, nil
}

func expandTemplate(tmpl string, rep *mpdRepresentation, number int) string {
	r := strings.NewReplacer(
		"$RepresentationID$", rep.ID,
		"$Bandwidth$", strconv.Itoa(rep.Bandwidth),
		"$Number$", strconv.Itoa(number),
	)
	return r.Replace(tmpl)
}
