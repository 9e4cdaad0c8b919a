package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/grafov/m3u8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmunix/streamgrab/internal/media"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubProvider struct {
	info *PlaybackInfo
	err  error
	got  media.Quality
}

func (p *stubProvider) PlaybackInfo(_ context.Context, _ media.Ref, q media.Quality) (*PlaybackInfo, error) {
	p.got = q
	return p.info, p.err
}

var trackRef = media.Ref{ID: "111", Kind: media.KindTrack, Available: true}

func TestResolve_SegmentList(t *testing.T) {
	provider := &stubProvider{info: &PlaybackInfo{
		ManifestMimeType: MimeSegmentList,
		Manifest:         []byte(`{"mimeType":"audio/flac","codecs":"flac","encryptionType":"NONE","urls":["https://cdn/a"]}`),
	}}
	r := NewResolver(provider, nil, testLogger())

	m, err := r.Resolve(context.Background(), trackRef, media.QualityLossless)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://cdn/a"}, m.URLs)
	assert.Equal(t, "flac", m.Codec)
	assert.False(t, m.Encrypted)
	assert.Equal(t, media.QualityLossless, provider.got)
}

func TestResolve_SegmentListEncrypted(t *testing.T) {
	provider := &stubProvider{info: &PlaybackInfo{
		ManifestMimeType: MimeSegmentList,
		Manifest:         []byte(`{"mimeType":"audio/mp4","codecs":"mp4a.40.2","encryptionType":"OLD_AES","keyId":"dG9rZW4=","urls":["u"]}`),
	}}
	m, err := NewResolver(provider, nil, testLogger()).Resolve(context.Background(), trackRef, media.QualityHigh)
	require.NoError(t, err)
	assert.True(t, m.Encrypted)
	assert.Equal(t, "dG9rZW4=", m.KeyToken)
}

func TestResolve_Errors(t *testing.T) {
	tests := []struct {
		name    string
		info    *PlaybackInfo
		err     error
		wantErr error
	}{
		{"not available", nil, fmt.Errorf("lookup: %w", media.ErrNotAvailable), media.ErrNotAvailable},
		{"unauthorized", nil, media.ErrUnauthorized, media.ErrUnauthorized},
		{"unknown mime", &PlaybackInfo{ManifestMimeType: "text/plain"}, nil, ErrUnsupportedManifest},
		{"bad json", &PlaybackInfo{ManifestMimeType: MimeSegmentList, Manifest: []byte("{")}, nil, ErrMalformedManifest},
		{"widevine", &PlaybackInfo{ManifestMimeType: MimeSegmentList, Manifest: []byte(`{"encryptionType":"WIDEVINE","urls":["u"]}`)}, nil, ErrUnsupportedEncryption},
		{"no urls", &PlaybackInfo{ManifestMimeType: MimeSegmentList, Manifest: []byte(`{"urls":[]}`)}, nil, ErrNoSegments},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver(&stubProvider{info: tt.info, err: tt.err}, nil, testLogger())
			_, err := r.Resolve(context.Background(), trackRef, media.QualityLossless)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

const testMPD = `<?xml version="1.0" encoding="UTF-8"?>
<MPD xmlns="urn:mpeg:dash:schema:mpd:2011" type="static">
  <Period id="0">
    <AdaptationSet id="0" contentType="audio" mimeType="audio/mp4">
      <Representation id="FLAC,96000,24" codecs="flac" bandwidth="2000000">
        <SegmentTemplate timescale="96000" initialization="https://cdn/init-$RepresentationID$.mp4" media="https://cdn/seg-$Number$.mp4" startNumber="1">
          <SegmentTimeline>
            <S d="384000" r="2"/>
            <S d="100000"/>
          </SegmentTimeline>
        </SegmentTemplate>
      </Representation>
      <Representation id="low" codecs="mp4a.40.2" bandwidth="320000">
        <SegmentTemplate initialization="https://cdn/low-init.mp4" media="https://cdn/low-$Number$.mp4">
          <SegmentTimeline><S d="1"/></SegmentTimeline>
        </SegmentTemplate>
      </Representation>
    </AdaptationSet>
  </Period>
</MPD>`

func TestResolve_DASH(t *testing.T) {
	provider := &stubProvider{info: &PlaybackInfo{ManifestMimeType: MimeDASH, Manifest: []byte(testMPD)}}

	m, err := NewResolver(provider, nil, testLogger()).Resolve(context.Background(), trackRef, media.QualityHiResLossless)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://cdn/init-FLAC,96000,24.mp4",
		"https://cdn/seg-1.mp4",
		"https://cdn/seg-2.mp4",
		"https://cdn/seg-3.mp4",
		"https://cdn/seg-4.mp4",
	}, m.URLs)
	assert.Equal(t, "flac", m.Codec)
	assert.Equal(t, "audio/mp4", m.MimeType)
}

func TestParseDASH_NoTemplate(t *testing.T) {
	_, err := parseDASH([]byte(`<MPD><Period><AdaptationSet><Representation id="x" bandwidth="1"/></AdaptationSet></Period></MPD>`))
	assert.ErrorIs(t, err, ErrMalformedManifest)
}

const masterPlaylist = `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=800000,RESOLUTION=640x360,CODECS="avc1.4d001e,mp4a.40.2"
360/index.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=2500000,RESOLUTION=1280x720,CODECS="avc1.4d001f,mp4a.40.2"
720/index.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=1400000,RESOLUTION=854x480,CODECS="avc1.4d001e,mp4a.40.2"
480/index.m3u8
`

const mediaPlaylist = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:10
#EXT-X-MEDIA-SEQUENCE:0
#EXTINF:10.0,
seg0.ts
#EXTINF:10.0,
seg1.ts
#EXT-X-ENDLIST
`

func newHLSServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/master.m3u8", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, masterPlaylist)
	})
	for _, res := range []string{"360", "480", "720"} {
		mux.HandleFunc("/"+res+"/index.m3u8", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, mediaPlaylist)
		})
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestResolve_HLS(t *testing.T) {
	srv := newHLSServer(t)
	videoRef := media.Ref{ID: "9", Kind: media.KindVideo, Available: true}

	tests := []struct {
		name    string
		quality media.Quality
		wantDir string
	}{
		{"exact match", "480", "480"},
		{"no match keeps highest", "1080", "720"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &stubProvider{info: &PlaybackInfo{
				ManifestMimeType: MimeHLS,
				Manifest:         []byte(`{"mimeType":"video/mp2t","urls":["` + srv.URL + `/master.m3u8"]}`),
			}}
			m, err := NewResolver(provider, srv.Client(), testLogger()).Resolve(context.Background(), videoRef, tt.quality)
			require.NoError(t, err)
			assert.Equal(t, []string{
				srv.URL + "/" + tt.wantDir + "/seg0.ts",
				srv.URL + "/" + tt.wantDir + "/seg1.ts",
			}, m.URLs)
		})
	}
}

func TestResolve_HLSPlaylistError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	provider := &stubProvider{info: &PlaybackInfo{
		ManifestMimeType: MimeHLS,
		Manifest:         []byte(`{"urls":["` + srv.URL + `/master.m3u8"]}`),
	}}
	_, err := NewResolver(provider, srv.Client(), testLogger()).Resolve(context.Background(), trackRef, "720")
	assert.Error(t, err)
}

func TestSelectVariant(t *testing.T) {
	variant := func(res, uri string) *m3u8.Variant {
		return &m3u8.Variant{URI: uri, VariantParams: m3u8.VariantParams{Resolution: res}}
	}
	variants := []*m3u8.Variant{
		variant("640x360", "a"),
		variant("1280x720", "b"),
		variant("1280x720", "c"),
		variant("1920x1080", "d"),
		nil,
	}

	assert.Equal(t, "b", selectVariant(variants, 720).URI, "stops at first exact match")
	assert.Equal(t, "d", selectVariant(variants, 2160).URI, "falls back to highest")
	assert.Equal(t, "d", selectVariant(variants, 0).URI)
	assert.Nil(t, selectVariant(nil, 720))
}

func TestVariantHeight(t *testing.T) {
	assert.Equal(t, 1080, variantHeight("1920x1080"))
	assert.Equal(t, 0, variantHeight(""))
	assert.Equal(t, 0, variantHeight("axb"))
}
