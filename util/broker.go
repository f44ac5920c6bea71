// Copyright 2019 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package util

// Broker fans out messages from a single publisher to multiple subscribers.
// Subscribers that fall behind miss messages rather than block the broker.
type Broker[T any] struct {
	stopCh    chan struct{}
	publishCh chan T
	subCh     chan chan T
	unsubCh   chan chan T
	// Per subscriber buffer.
	depth int
}

func NewBroker[T any](depth int) *Broker[T] {
	if depth <= 0 {
		depth = 5
	}
	return &Broker[T]{
		stopCh:    make(chan struct{}),
		publishCh: make(chan T, 1),
		subCh:     make(chan chan T),
		unsubCh:   make(chan chan T),
		depth:     depth,
	}
}

// Runs the broker loop until Stop. Subscriber channels are closed on exit.
func (b *Broker[T]) Start() {
	subs := map[chan T]struct{}{}
	defer func() {
		for msgCh := range subs {
			close(msgCh)
		}
	}()
	for {
		select {
		case <-b.stopCh:
			return
		case msgCh := <-b.subCh:
			subs[msgCh] = struct{}{}
		case msgCh := <-b.unsubCh:
			if _, ok := subs[msgCh]; ok {
				delete(subs, msgCh)
				close(msgCh)
			}
		case msg := <-b.publishCh:
			for msgCh := range subs {
				select {
				case msgCh <- msg:
				default:
				}
			}
		}
	}
}

func (b *Broker[T]) Stop() {
	close(b.stopCh)
}

// The subscription is registered when Subscribe returns.
func (b *Broker[T]) Subscribe() chan T {
	msgCh := make(chan T, b.depth)
	select {
	case b.subCh <- msgCh:
	case <-b.stopCh:
		close(msgCh)
	}
	return msgCh
}

func (b *Broker[T]) Unsubscribe(msgCh chan T) {
	select {
	case b.unsubCh <- msgCh:
	case <-b.stopCh:
	}
}

func (b *Broker[T]) Publish(msg T) {
	select {
	case b.publishCh <- msg:
	case <-b.stopCh:
	}
}
