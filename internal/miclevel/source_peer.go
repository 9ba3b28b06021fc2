package miclevel

type peerSource struct {
	tap AudioTap
}

func openPeerSource(tap AudioTap, feed Feed) Source {
	tap.SetAudioSink(func(samples []int16) {
		if len(samples) == 0 {
			return
		}
		feed(peakInt16(samples))
	})
	return &peerSource{tap: tap}
}

func (s *peerSource) Close() error {
	s.tap.SetAudioSink(nil)
	return nil
}
