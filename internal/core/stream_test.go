package core

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/mediaflow/internal/domain"
)

func TestHasMedia(t *testing.T) {
	for _, audio := range []bool{false, true} {
		for _, video := range []bool{false, true} {
			for _, screen := range []bool{false, true} {
				s, err := New(Spec{Audio: audio, Video: video, Screen: screen})
				require.NoError(t, err)
				assert.Equal(t, audio || video || screen, s.HasMedia())
			}
		}
	}
}

func TestNewVideoSize(t *testing.T) {
	tests := []struct {
		name    string
		size    []int
		wantErr error
	}{
		{name: "absent", size: nil},
		{name: "four bounds", size: []int{320, 240, 1280, 720}},
		{name: "too short", size: []int{320, 240}, wantErr: domain.ErrInvalidVideoSize},
		{name: "too long", size: []int{1, 2, 3, 4, 5}, wantErr: domain.ErrInvalidVideoSize},
		{name: "empty", size: []int{}, wantErr: domain.ErrInvalidVideoSize},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(Spec{Video: true, VideoSize: tt.size})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, s)
				return
			}
			assert.NoError(t, err)
			assert.NotNil(t, s)
		})
	}

	_, err := New(Spec{Video: true, VideoFrameRate: []float32{30}})
	assert.ErrorIs(t, err, domain.ErrInvalidFrameRate)
}

func TestIDAndRole(t *testing.T) {
	local, _ := New(Spec{Audio: true})
	assert.True(t, local.IsLocal())
	assert.Equal(t, domain.LocalStreamID, local.ID())

	local.SetID("abc")
	assert.Equal(t, domain.StreamID("abc"), local.ID())
	local.SetID("other")
	assert.Equal(t, domain.StreamID("abc"), local.ID())
	local.ResetID()
	assert.Equal(t, domain.LocalStreamID, local.ID())
	local.SetID("other")
	assert.Equal(t, domain.StreamID("other"), local.ID())

	rem, _ := New(Spec{Local: remote(), StreamID: "r1"})
	assert.False(t, rem.IsLocal())
	assert.Equal(t, domain.StreamID("r1"), rem.ID())
	rem.ResetID()
	assert.Equal(t, domain.StreamID("r1"), rem.ID())

	explicit, _ := New(Spec{Local: domain.Bool(true)})
	assert.True(t, explicit.IsLocal())
}

func TestIsExternal(t *testing.T) {
	s, _ := New(Spec{})
	assert.False(t, s.IsExternal())
	s, _ = New(Spec{URL: "rtsp://cam"})
	assert.True(t, s.IsExternal())
	s, _ = New(Spec{Recording: "rec-1"})
	assert.True(t, s.IsExternal())
}

func TestInitWithoutMediaAcceptsSynchronously(t *testing.T) {
	acq := &fakeAcquirer{}
	s, _ := New(Spec{Data: true}, WithAcquirer(acq))
	rec := record(s, allKinds...)

	s.Init(context.Background())

	events := rec.all()
	require.Len(t, events, 1)
	assert.Equal(t, EventAccessAccepted, events[0].Kind())
	assert.Zero(t, acq.calls)
}

func TestInitWithURLSkipsDevices(t *testing.T) {
	acq := &fakeAcquirer{}
	s, _ := New(Spec{Video: true, URL: "file:///tmp/a.mkv"}, WithAcquirer(acq))
	rec := record(s, allKinds...)

	s.Init(context.Background())

	require.Len(t, rec.all(), 1)
	assert.Equal(t, EventAccessAccepted, rec.all()[0].Kind())
	assert.Zero(t, acq.calls)
}

func TestInitAcquiresMedia(t *testing.T) {
	video := newFakeTrack("v", domain.TrackKindVideo)
	acq := &fakeAcquirer{handle: newFakeHandle(video)}
	s, _ := New(Spec{
		Screen:          true,
		VideoSize:       []int{640, 480, 1920, 1080},
		VideoFrameRate:  []float32{15, 30},
		DesktopStreamID: "desk",
	}, WithAcquirer(acq))
	rec := record(s, allKinds...)

	s.Init(context.Background())

	require.Equal(t, 1, acq.calls)
	c := acq.constraints
	assert.True(t, c.Video, "screen implies video")
	assert.True(t, c.Screen)
	assert.False(t, c.Audio)
	assert.Equal(t, &domain.VideoBounds{MinWidth: 640, MinHeight: 480, MaxWidth: 1920, MaxHeight: 1080}, c.Size)
	assert.Equal(t, &domain.FrameRateBounds{Min: 15, Max: 30}, c.FrameRate)
	assert.Equal(t, "desk", c.DesktopStreamID)

	events := rec.all()
	require.Len(t, events, 1)
	assert.Equal(t, EventAccessAccepted, events[0].Kind())
	assert.NotNil(t, s.MediaHandle())
	assert.True(t, video.hasHandler())
}

func TestInitAudioOnlyHasNoVideoBounds(t *testing.T) {
	acq := &fakeAcquirer{handle: newFakeHandle()}
	s, _ := New(Spec{Audio: true, VideoSize: []int{1, 2, 3, 4}}, WithAcquirer(acq))
	s.Init(context.Background())
	assert.False(t, acq.constraints.Video)
	assert.Nil(t, acq.constraints.Size)
}

func TestInitDenied(t *testing.T) {
	acq := &fakeAcquirer{err: errDenied}
	s, _ := New(Spec{Audio: true}, WithAcquirer(acq))
	rec := record(s, allKinds...)

	s.Init(context.Background())

	events := rec.all()
	require.Len(t, events, 1)
	assert.Equal(t, EventAccessDenied, events[0].Kind())
	assert.ErrorIs(t, events[0].Err(), errDenied)
	assert.Nil(t, s.MediaHandle())
}

func TestInitPanicBecomesDenied(t *testing.T) {
	acq := &fakeAcquirer{panicWith: "driver crashed"}
	s, _ := New(Spec{Video: true}, WithAcquirer(acq))
	rec := record(s, allKinds...)

	assert.NotPanics(t, func() { s.Init(context.Background()) })

	events := rec.all()
	require.Len(t, events, 1)
	assert.Equal(t, EventAccessDenied, events[0].Kind())
	assert.Contains(t, events[0].Err().Error(), "driver crashed")
}

func TestInitWithoutAcquirer(t *testing.T) {
	s, _ := New(Spec{Audio: true})
	rec := record(s, allKinds...)
	s.Init(context.Background())
	require.Len(t, rec.all(), 1)
	assert.ErrorIs(t, rec.all()[0].Err(), ErrNoDeviceAcquirer)
}

func TestInitOnlyOnce(t *testing.T) {
	s, _ := New(Spec{})
	rec := record(s, allKinds...)
	s.Init(context.Background())
	s.Init(context.Background())
	assert.Len(t, rec.all(), 1)
}

func TestInitAdoptsExistingHandle(t *testing.T) {
	audio := newFakeTrack("a", domain.TrackKindAudio)
	acq := &fakeAcquirer{}
	s, _ := New(Spec{Audio: true, Stream: newFakeHandle(audio)}, WithAcquirer(acq))
	rec := record(s, allKinds...)

	s.Init(context.Background())

	assert.Zero(t, acq.calls)
	require.Len(t, rec.all(), 1)
	assert.Equal(t, EventAccessAccepted, rec.all()[0].Kind())
	assert.True(t, audio.hasHandler())
}

func TestStreamEndedOnce(t *testing.T) {
	audio := newFakeTrack("a", domain.TrackKindAudio)
	video := newFakeTrack("v", domain.TrackKindVideo)
	acq := &fakeAcquirer{handle: newFakeHandle(audio, video)}
	s, _ := New(Spec{Audio: true, Video: true}, WithAcquirer(acq))
	s.Init(context.Background())
	rec := record(s, EventStreamEnded)

	video.end()
	audio.end()
	video.end()

	events := rec.all()
	require.Len(t, events, 1)
	assert.Equal(t, domain.TrackKindVideo, events[0].TrackKind())
	assert.False(t, audio.hasHandler())
	assert.False(t, video.hasHandler())
}

func TestCheckOptionsUpdateClearsMediaType(t *testing.T) {
	for _, local := range []*bool{nil, remote()} {
		s, _ := New(Spec{Video: true, Audio: true, Local: local})
		in := domain.Options{Video: domain.Bool(true), Audio: domain.Bool(false), MaxVideoBW: domain.Int(300)}

		out := s.CheckOptions(in, true).(domain.Options)

		assert.Nil(t, out.Video)
		assert.Nil(t, out.Audio)
		assert.Nil(t, out.Screen)
		assert.Equal(t, 300, *out.MaxVideoBW)
		assert.True(t, *in.Video, "input is not mutated")
	}
}

func TestCheckOptionsUpdateKeepsFalseFlags(t *testing.T) {
	s, _ := New(Spec{Video: true})
	out := s.CheckOptions(domain.Options{Video: domain.Bool(false)}, true).(domain.Options)
	require.NotNil(t, out.Video)
	assert.False(t, *out.Video)
}

func TestCheckOptionsRemoteSubscribe(t *testing.T) {
	s, _ := New(Spec{Audio: true, Local: remote()})
	out := s.CheckOptions(domain.Options{
		Video:         domain.Bool(true),
		Audio:         domain.Bool(true),
		SlideShowMode: domain.Bool(true),
	}, false).(domain.Options)

	require.NotNil(t, out.Video)
	assert.False(t, *out.Video)
	assert.True(t, *out.Audio)
	assert.False(t, *out.SlideShowMode)
}

func TestCheckOptionsLocalSubscribeUntouched(t *testing.T) {
	s, _ := New(Spec{Audio: true})
	out := s.CheckOptions(domain.Options{Video: domain.Bool(true), SlideShowMode: domain.Bool(true)}, false).(domain.Options)
	assert.True(t, *out.Video)
	assert.True(t, *out.SlideShowMode)
}

func TestCheckOptionsSlideShowOnUpdate(t *testing.T) {
	s, _ := New(Spec{Audio: true, Local: remote()})
	out := s.CheckOptions(domain.Options{SlideShowMode: domain.Bool(true)}, true).(domain.Options)
	assert.False(t, *out.SlideShowMode)
}

func TestCheckOptionsSanitizesExtraMediaFlags(t *testing.T) {
	s, _ := New(Spec{Audio: true, Local: remote()})
	in := domain.Options{Extra: map[string]any{"video": true, "slideShowMode": true, "quality": "hd"}}

	out := s.CheckOptions(in, true).(domain.Options)

	assert.Nil(t, out.Video)
	assert.False(t, *out.SlideShowMode)
	assert.Equal(t, map[string]any{"quality": "hd"}, out.Extra)
	b, err := json.Marshal(out)
	require.NoError(t, err)
	assert.JSONEq(t, `{"slideShowMode":false,"quality":"hd"}`, string(b))

	sub := s.CheckOptions(domain.Options{Extra: map[string]any{"video": true}}, false).(domain.Options)
	require.NotNil(t, sub.Video)
	assert.False(t, *sub.Video)
}

func TestCheckOptionsPassesOtherUpdates(t *testing.T) {
	s, _ := New(Spec{})
	mute := domain.MuteUpdate{Audio: true}
	assert.Equal(t, mute, s.CheckOptions(mute, true))
	layer := domain.QualityLayerUpdate{SpatialLayer: 2, TemporalLayer: 1}
	assert.Equal(t, layer, s.CheckOptions(layer, true))
}

func TestMuteInP2P(t *testing.T) {
	tr := &fakeTransport{}
	s, _ := New(Spec{Audio: true})
	s.Attach(&fakeSession{p2p: true}, tr)

	var got error
	s.MuteAudio(true, func(err error) { got = err })

	assert.ErrorIs(t, got, ErrP2PUnsupported)
	assert.Empty(t, tr.sent())
	assert.True(t, s.AudioMuted())
}

func TestMuteTogglesTracksAndUpdatesTransport(t *testing.T) {
	audio := newFakeTrack("a", domain.TrackKindAudio)
	video := newFakeTrack("v", domain.TrackKindVideo)
	acq := &fakeAcquirer{handle: newFakeHandle(audio, video)}
	s, _ := New(Spec{Audio: true, Video: true}, WithAcquirer(acq))
	s.Init(context.Background())
	tr := &fakeTransport{}
	s.Attach(&fakeSession{}, tr)

	called := 0
	s.MuteVideo(true, func(err error) {
		called++
		assert.NoError(t, err)
	})
	assert.False(t, video.Enabled())
	assert.True(t, audio.Enabled())

	s.MuteAudio(true, nil)
	assert.False(t, audio.Enabled())

	s.MuteVideo(false, nil)
	assert.True(t, video.Enabled())

	assert.Equal(t, 1, called)
	assert.Equal(t, []domain.Update{
		domain.MuteUpdate{Audio: false, Video: true},
		domain.MuteUpdate{Audio: true, Video: true},
		domain.MuteUpdate{Audio: true, Video: false},
	}, tr.sent())
}

func TestMuteWithoutTransport(t *testing.T) {
	s, _ := New(Spec{Audio: true})
	var got error
	s.MuteAudio(true, func(err error) { got = err })
	assert.ErrorIs(t, got, ErrNoTransport)
}

func TestSetQualityLayer(t *testing.T) {
	tr := &fakeTransport{}
	s, _ := New(Spec{Video: true, Local: remote(), StreamID: "r"})
	s.Attach(&fakeSession{}, tr)

	s.SetQualityLayer(2, 1, nil)
	assert.Equal(t, []domain.Update{domain.QualityLayerUpdate{SpatialLayer: 2, TemporalLayer: 1}}, tr.sent())

	p2p := &fakeTransport{}
	s2, _ := New(Spec{Video: true, Local: remote()})
	s2.Attach(&fakeSession{p2p: true}, p2p)
	var got error
	s2.SetQualityLayer(0, 0, func(err error) { got = err })
	assert.ErrorIs(t, got, ErrP2PUnsupported)
	assert.Empty(t, p2p.sent())
}

func TestControlHandlers(t *testing.T) {
	sess := &fakeSession{}
	s, _ := New(Spec{Video: true})
	s.Attach(sess)

	s.EnableHandlers("foo", true)
	s.EnableHandlers([]string{}, true)
	s.DisableHandlers([]string{"a", "b"})
	s.DisableHandlers(42, true)

	require.Len(t, sess.controls, 2)
	assert.Equal(t, "control", sess.controls[0].kind)
	assert.Equal(t, domain.ControlMessage{
		Name:          "controlhandlers",
		Enable:        true,
		PublisherSide: true,
		Handlers:      []string{"foo"},
	}, sess.controls[0].msg)
	assert.Equal(t, domain.ControlMessage{
		Name:          "controlhandlers",
		Enable:        false,
		PublisherSide: false,
		Handlers:      []string{"a", "b"},
	}, sess.controls[1].msg)
}

func TestUpdateConfigurationWithoutTransport(t *testing.T) {
	sess := &fakeSession{}
	s, _ := New(Spec{Video: true})
	s.Attach(sess)
	rec := record(s, allKinds...)

	var got error
	calls := 0
	s.UpdateConfiguration(domain.Options{MaxVideoBW: domain.Int(100)}, func(err error) {
		calls++
		got = err
	})

	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, got, ErrNoTransport)
	assert.Empty(t, rec.all())
	assert.Empty(t, sess.controls)
	assert.Empty(t, sess.unpublished)
}

func TestUpdateConfigurationNil(t *testing.T) {
	s, _ := New(Spec{})
	called := false
	s.UpdateConfiguration(nil, func(error) { called = true })
	assert.False(t, called)
}

func TestUpdateConfigurationSanitizes(t *testing.T) {
	tr := &fakeTransport{}
	s, _ := New(Spec{Video: true})
	s.Attach(&fakeSession{}, tr)

	s.UpdateConfiguration(domain.Options{Video: domain.Bool(true), MaxVideoBW: domain.Int(500)}, nil)

	sent := tr.sent()
	require.Len(t, sent, 1)
	o := sent[0].(domain.Options)
	assert.Nil(t, o.Video)
	assert.Equal(t, 500, *o.MaxVideoBW)
}

func TestUpdateConfigurationP2PLocalFansOut(t *testing.T) {
	a, b := &fakeTransport{}, &fakeTransport{}
	s, _ := New(Spec{Video: true})
	s.Attach(&fakeSession{p2p: true}, a, b)

	calls := 0
	s.UpdateConfiguration(domain.Options{MaxVideoBW: domain.Int(1)}, func(error) { calls++ })

	assert.Len(t, a.sent(), 1)
	assert.Len(t, b.sent(), 1)
	assert.Equal(t, 2, calls)
}

func TestAddAndRemoveTransport(t *testing.T) {
	a, b := &fakeTransport{}, &fakeTransport{}
	s, _ := New(Spec{Video: true})
	assert.False(t, s.AddTransport(a), "no session yet")

	s.Attach(&fakeSession{p2p: true}, a)
	assert.True(t, s.AddTransport(b))
	assert.Len(t, s.Transports(), 2)

	assert.True(t, s.RemoveTransport(a))
	assert.False(t, s.RemoveTransport(a))
	require.Len(t, s.Transports(), 1)
	assert.Same(t, b, s.Transports()[0])

	s.Detach()
	assert.False(t, s.AddTransport(a))
	assert.Empty(t, s.Transports())
}

func TestUpdateConfigurationRemoteUsesFirstTransport(t *testing.T) {
	a, b := &fakeTransport{}, &fakeTransport{}
	s, _ := New(Spec{Video: true, Local: remote()})
	s.Attach(&fakeSession{p2p: true}, a, b)

	s.UpdateConfiguration(domain.Options{MaxVideoBW: domain.Int(1)}, nil)

	assert.Len(t, a.sent(), 1)
	assert.Empty(t, b.sent())
}

func TestSetAttributes(t *testing.T) {
	local, _ := New(Spec{Attributes: domain.Attributes{"name": "me"}})
	rec := record(local, EventSetAttributes)
	local.SetAttributes(domain.Attributes{"name": "new"})

	events := rec.all()
	require.Len(t, events, 1)
	assert.Equal(t, "new", events[0].Attributes()["name"])
	assert.Equal(t, "me", local.Attributes()["name"], "committed only after round trip")

	local.UpdateLocalAttributes(domain.Attributes{"name": "new"})
	assert.Equal(t, "new", local.Attributes()["name"])

	rem, _ := New(Spec{Local: remote(), Attributes: domain.Attributes{"name": "them"}})
	remRec := record(rem, EventSetAttributes)
	rem.SetAttributes(domain.Attributes{"name": "x"})
	assert.Empty(t, remRec.all())
	assert.Equal(t, "them", rem.Attributes()["name"])
}

func TestSendData(t *testing.T) {
	withData, _ := New(Spec{Data: true})
	rec := record(withData, EventSendData)
	withData.SendData(map[string]any{"text": "hi"})
	require.Len(t, rec.all(), 1)
	assert.Equal(t, map[string]any{"text": "hi"}, rec.all()[0].Message())

	noData, _ := New(Spec{Audio: true})
	rec = record(noData, EventSendData)
	noData.SendData("x")
	assert.Empty(t, rec.all())

	rem, _ := New(Spec{Data: true, Local: remote()})
	rec = record(rem, EventSendData)
	rem.SendData("x")
	assert.Empty(t, rec.all())
}

func TestPlayAndStop(t *testing.T) {
	r := &fakeRenderer{}
	s, _ := New(Spec{Video: true, Local: remote(), StreamID: "r1"}, WithRenderer(r))

	require.NoError(t, s.Play("", nil))
	assert.False(t, s.Showing(), "video needs a target")

	require.NoError(t, s.Play("out", map[string]any{"bar": true}))
	assert.True(t, s.Showing())
	require.Len(t, r.opts, 1)
	assert.Equal(t, domain.TrackKindVideo, r.opts[0].Kind)
	assert.Equal(t, domain.StreamID("r1"), r.opts[0].StreamID)

	s.Hide()
	assert.False(t, s.Showing())
	assert.True(t, r.players[0].destroyed)

	audio, _ := New(Spec{Audio: true}, WithRenderer(r))
	require.NoError(t, audio.Show("", nil))
	assert.True(t, audio.Showing())
	assert.Equal(t, domain.TrackKindAudio, r.opts[1].Kind)
}

func TestPlayWithoutRenderer(t *testing.T) {
	s, _ := New(Spec{Audio: true})
	assert.ErrorIs(t, s.Play("x", nil), ErrNoRenderer)
	assert.False(t, s.Showing())
}

func TestCloseLocal(t *testing.T) {
	audio := newFakeTrack("a", domain.TrackKindAudio)
	video := newFakeTrack("v", domain.TrackKindVideo)
	acq := &fakeAcquirer{handle: newFakeHandle(audio, video)}
	r := &fakeRenderer{}
	s, _ := New(Spec{Audio: true, Video: true}, WithAcquirer(acq), WithRenderer(r))
	s.Init(context.Background())
	require.NoError(t, s.Play("out", nil))
	sess := &fakeSession{}
	s.Attach(sess, &fakeTransport{})
	rec := record(s, EventStreamEnded)

	s.Close()
	s.Close()

	assert.Equal(t, []*Stream{s}, sess.unpublished)
	assert.True(t, audio.stopped)
	assert.True(t, video.stopped)
	assert.Empty(t, rec.all(), "stopping on purpose is not an end")
	assert.Nil(t, s.MediaHandle())
	assert.False(t, s.Showing())
	assert.True(t, r.players[0].destroyed)
	assert.True(t, s.Closed())

	var got error
	s.MuteAudio(true, func(err error) { got = err })
	assert.ErrorIs(t, got, ErrStreamClosed)
}

func TestCloseRemoteIsNoop(t *testing.T) {
	track := newFakeTrack("v", domain.TrackKindVideo)
	r := &fakeRenderer{}
	s, _ := New(Spec{Video: true, Local: remote(), StreamID: "r"}, WithRenderer(r))
	s.AdoptMediaHandle(newFakeHandle(track))
	require.NoError(t, s.Play("out", nil))
	sess := &fakeSession{}
	s.Attach(sess, &fakeTransport{})

	s.Close()

	assert.Empty(t, sess.unpublished)
	assert.False(t, track.stopped)
	assert.NotNil(t, s.MediaHandle())
	assert.True(t, s.Showing())
	assert.False(t, s.Closed())
}

func TestAccessGrantedAfterClose(t *testing.T) {
	track := newFakeTrack("a", domain.TrackKindAudio)
	s, _ := New(Spec{Audio: true})
	s.Close()
	rec := record(s, allKinds...)

	s.onAccessGranted(newFakeHandle(track))

	assert.True(t, track.stopped)
	require.Len(t, rec.all(), 1)
	assert.ErrorIs(t, rec.all()[0].Err(), ErrStreamClosed)
}
