package ingestion

// turnstile lets concurrently prepared documents pass one at a time in input
// order. Every slot must be passed exactly once, even on failure, or later
// slots wait forever.
type turnstile struct {
	gates []chan struct{}
}

func newTurnstile(n int) *turnstile {
	gates := make([]chan struct{}, n)
	for i := range gates {
		gates[i] = make(chan struct{})
	}
	return &turnstile{gates: gates}
}

// wait blocks until slot i-1 has passed.
func (t *turnstile) wait(i int) {
	if i > 0 {
		<-t.gates[i-1]
	}
}

// pass releases slot i.
func (t *turnstile) pass(i int) {
	close(t.gates[i])
}
