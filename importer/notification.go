/*
 * Copyright (c) 2020 Siemens AG
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy of
 * this software and associated documentation files (the "Software"), to deal in
 * the Software without restriction, including without limitation the rights to
 * use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of
 * the Software, and to permit persons to whom the Software is furnished to do so,
 * subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS
 * FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR
 * COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
 * IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
 * CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
 *
 * Author(s): Jonas Plum
 */

package importer

import "sync"

// Notification is the outcome of one item.
type Notification struct {
	Action Action
	Item   *Item
	// Table is the destination table of imported items.
	Table string
	err   error
}

// Success creates a notification of a successful action.
func Success(action Action, item *Item) Notification {
	return Notification{Action: action, Item: item}
}

// Failure creates a notification of a failed action.
func Failure(action Action, item *Item, err error) Notification {
	return Notification{Action: action, Item: item, err: err}
}

// Err returns the error of a failed action.
func (n Notification) Err() error {
	return n.err
}

// Failed reports whether the action failed. The statistics of failed items
// are incomplete.
func (n Notification) Failed() bool {
	return n.err != nil
}

// Result returns "0" for success or the error text.
func (n Notification) Result() string {
	if n.err != nil {
		return n.err.Error()
	}
	return "0"
}

// Notifier receives the notification of every admitted item.
type Notifier interface {
	Notify(n Notification)
}

// NotifierFunc adapts a function to a Notifier.
type NotifierFunc func(n Notification)

func (f NotifierFunc) Notify(n Notification) { f(n) }

// Collector is a Notifier that keeps all notifications.
type Collector struct {
	mu            sync.Mutex
	notifications []Notification
}

func (c *Collector) Notify(n Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notifications = append(c.notifications, n)
}

// Notifications returns a copy of the received notifications.
func (c *Collector) Notifications() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Notification(nil), c.notifications...)
}
