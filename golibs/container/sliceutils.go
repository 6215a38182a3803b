// Copyright 2023 The acquirecloud Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package container

// SliceFill sets all values of s to v
func SliceFill[V any](s []V, v V) {
	// magic number when copy becomes faster
	if len(s) < 50 {
		for i := range s {
			s[i] = v
		}
		return
	}
	s[0] = v
	for j := 1; j < len(s); j *= 2 {
		copy(s[j:], s[:j])
	}
}
