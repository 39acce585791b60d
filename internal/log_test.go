// Copyright (C) 2021 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestLogAlsoToFile(t *testing.T) {
	fileName := filepath.Join(t.TempDir(), "stainlight.log")
	if err := LogAlsoToFile(fileName); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			fmt.Fprintf(LogWriter(), "%d: line\n", i)
		}(i)
	}
	wg.Wait()
	LogPrintf("%s\n", "done")
	LogSync()

	bs, err := os.ReadFile(fileName)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(bs)), "\n")
	if len(lines) != 5 || lines[4] != "done" {
		t.Errorf("log file holds %q", lines)
	}
	for _, l := range lines[:4] {
		if !strings.HasSuffix(l, ": line") {
			t.Errorf("interleaved line %q", l)
		}
	}

	// switching files truncates the new one
	second := filepath.Join(t.TempDir(), "second.log")
	if err := LogAlsoToFile(second); err != nil {
		t.Fatal(err)
	}
	LogPrintln("second")
	LogSync()
	if bs, _ := os.ReadFile(second); string(bs) != "second\n" {
		t.Errorf("second log file holds %q", bs)
	}
}
