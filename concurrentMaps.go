// Copyright (c) 2020 Siemens AG
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of
// the Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS
// FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR
// COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
// IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
// CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
//
// Author(s): Jonas Plum

package evidencegraph

import (
	"sort"
	"sync"
)

// columnMap tracks the attribute keys seen per view.
type columnMap struct {
	sync.RWMutex
	changed map[string]bool
	views   map[string]map[string]bool
}

func newColumnMap() *columnMap {
	return &columnMap{
		changed: map[string]bool{},
		views:   map[string]map[string]bool{},
	}
}

func (cm *columnMap) add(view string, keys ...string) {
	cm.Lock()
	if _, ok := cm.views[view]; !ok {
		cm.views[view] = map[string]bool{}
		cm.changed[view] = true
	}
	for _, key := range keys {
		if _, ok := cm.views[view][key]; !ok {
			cm.views[view][key] = true
			cm.changed[view] = true
		}
	}
	cm.Unlock()
}

func (cm *columnMap) addAll(view string, fields map[string]interface{}) {
	keys := make([]string, 0, len(fields))
	for field := range fields {
		keys = append(keys, field)
	}
	cm.add(view, keys...)
}

// keys returns the sorted keys of a view.
func (cm *columnMap) keys(view string) []string {
	cm.RLock()
	defer cm.RUnlock()
	var keys []string
	for key := range cm.views[view] {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// takeChanged returns the sorted names of all views changed since the last
// call and resets the change tracking.
func (cm *columnMap) takeChanged() []string {
	cm.Lock()
	defer cm.Unlock()
	var views []string
	for view := range cm.changed {
		views = append(views, view)
	}
	sort.Strings(views)
	cm.changed = map[string]bool{}
	return views
}
