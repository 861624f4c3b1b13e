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

package reduce

import (
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/forensicanalysis/evidencegraph/evidence"
)

const (
	indexedDBMarker = "IndexedDB"
	historyMarker   = "History"
	vssSystemFolder = "System Volume Information"
	securityLogGlob = "security*.evtx"
	securityChannel = "Security"
	logClearedEvent = "1102"
)

// VSSMarkers are file names proving Volume Shadow Copy was active.
var VSSMarkers = []string{"tracking.log", "IndexerVolumeGuid", "_OnDiskSnapshotProp"} // nolint:gochecknoglobals

// All keeps every record. It is used to copy small sources.
func All(*evidence.Record) bool { return true }

// IndexedDB keeps files located in a browser IndexedDB folder.
func IndexedDB(record *evidence.Record) bool {
	if record.Kind != evidence.File && record.Kind != evidence.Document {
		return false
	}
	if file := record.File(); file != nil && strings.Contains(file.FilePath, indexedDBMarker) {
		return true
	}
	if mft := record.Mft(); mft != nil && strings.Contains(mft.ParentPath, indexedDBMarker) {
		return true
	}
	return false
}

// HistoryTampering keeps truncated, overwritten or extended browser
// history files.
func HistoryTampering(record *evidence.Record) bool {
	if record.Kind != evidence.File {
		return false
	}
	usn := record.Usn()
	if usn == nil || !strings.Contains(record.FileName(), historyMarker) {
		return false
	}
	return usn.HasReason(evidence.ReasonDataTruncation, evidence.ReasonDataOverwrite, evidence.ReasonDataExtend)
}

// VSSInfrastructure keeps shadow copy infrastructure files of the MFT.
func VSSInfrastructure(record *evidence.Record) bool {
	mft := record.Mft()
	if mft == nil || !strings.Contains(mft.ParentPath, vssSystemFolder) {
		return false
	}
	name := record.FileName()
	for _, marker := range VSSMarkers {
		if strings.Contains(name, marker) {
			return true
		}
	}
	return ContainsGUID(name)
}

// VSSDeletion keeps deleted or truncated GUID named files of the change
// journal.
func VSSDeletion(record *evidence.Record) bool {
	usn := record.Usn()
	if usn == nil || !ContainsGUID(record.FileName()) {
		return false
	}
	return usn.HasReason(evidence.ReasonFileDelete, evidence.ReasonFileDeleteClose, evidence.ReasonDataTruncation)
}

// Event1102 keeps "audit log was cleared" events of the Security channel.
func Event1102(record *evidence.Record) bool {
	event := record.EventRecord()
	channel := record.EventLog()
	if event == nil || channel == nil {
		return false
	}
	return event.EventID == logClearedEvent && strings.EqualFold(channel.Channel, securityChannel)
}

// SecurityLogUSN keeps change journal entries of the Security event log
// file.
func SecurityLogUSN(record *evidence.Record) bool {
	if record.Usn() == nil {
		return false
	}
	ok, _ := path.Match(securityLogGlob, strings.ToLower(record.FileName()))
	return ok
}

// ContainsGUID reports whether a name contains a braced GUID such as
// "{3808876b-c176-4e48-b7ae-04046e6cc752}".
func ContainsGUID(name string) bool {
	for {
		start := strings.IndexByte(name, '{')
		if start < 0 {
			return false
		}
		end := strings.IndexByte(name[start:], '}')
		if end < 0 {
			return false
		}
		if _, err := uuid.Parse(name[start+1 : start+end]); err == nil {
			return true
		}
		name = name[start+1:]
	}
}
