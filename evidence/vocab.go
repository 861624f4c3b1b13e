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

package evidence

// JSON-LD keys of the CASE/UCO evidence vocabulary.
const (
	KeyContext = "@context"
	KeyGraph   = "@graph"
	KeyID      = "@id"
	KeyType    = "@type"
	KeyValue   = "@value"
	KeyFacets  = "core:hasFacet"

	// MftFacet
	KeyEntryNumber = "dfc-ext:entryNumber"
	KeyParentPath  = "dfc-ext:parentPath"
	KeySICreated   = "dfc-ext:created0x10"
	KeyFNCreated   = "dfc-ext:created0x30"
	KeySIModified  = "dfc-ext:modified0x10"
	KeyFNModified  = "dfc-ext:modified0x30"

	// UsnFacet
	KeyUpdateReasons = "dfc-ext:updateReasons"
	KeyUsnTimestamp  = "dfc-ext:timestamp"
	KeyUsn           = "dfc-ext:usn"
	KeyFileReference = "dfc-ext:fileReferenceNumber"

	// FileFacet
	KeyFileName  = "observable:fileName"
	KeyFilePath  = "observable:filePath"
	KeyExtension = "observable:extension"

	// EventRecordFacet
	KeyEventID       = "observable:eventID"
	KeyEventRecordID = "observable:eventRecordID"
	KeyTimeCreated   = "dfc-ext:timeCreated"
	KeyEventTime     = "observable:eventCreatedTime"

	// EventLogFacet
	KeyChannel  = "dfc-ext:channel"
	KeyComputer = "dfc-ext:computer"
	KeyProvider = "dfc-ext:provider"

	// WindowsLnkFacet
	KeyTargetEntryNumber = "dfc-ext:targetMftEntryNumber"
	KeyTargetPath        = "dfc-ext:targetPath"
	KeyTargetCreated     = "dfc-ext:targetCreated"
	KeyShortcutCreated   = "dfc-ext:shortcutCreated"

	// OfficeMetadataFacet
	KeyOfficeCreated  = "dcterms:created"
	KeyOfficeModified = "dcterms:modified"
	KeyOfficeCreator  = "dc:creator"

	// URLFacet
	KeyFullValue = "observable:fullValue"
	KeyURLTitle  = "dfc-ext:title"
)

// USN update reasons referenced by the detection predicates.
const (
	ReasonDataTruncation  = "DataTruncation"
	ReasonDataOverwrite   = "DataOverwrite"
	ReasonDataExtend      = "DataExtend"
	ReasonFileDelete      = "FileDelete"
	ReasonFileDeleteClose = "FileDeleteClose"
)

// LocalName strips the vocabulary prefix of a key,
// e.g. "dfc-ext:parentPath" becomes "parentPath".
func LocalName(key string) string {
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == ':' {
			return key[i+1:]
		}
	}
	return key
}

// CanonicalKeys are the attribute keys every store view exposes, whether or
// not a loaded record carries them.
var CanonicalKeys = []string{ // nolint:gochecknoglobals
	KeyEntryNumber, KeyParentPath, KeySICreated, KeyFNCreated, KeySIModified, KeyFNModified,
	KeyUpdateReasons, KeyUsnTimestamp, KeyUsn, KeyFileReference,
	KeyFileName, KeyFilePath, KeyExtension,
	KeyEventID, KeyEventRecordID, KeyTimeCreated, KeyEventTime,
	KeyChannel, KeyComputer, KeyProvider,
	KeyTargetEntryNumber, KeyTargetPath, KeyTargetCreated, KeyShortcutCreated,
	KeyOfficeCreated, KeyOfficeModified, KeyOfficeCreator,
	KeyFullValue, KeyURLTitle,
}
