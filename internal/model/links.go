package model

import "fmt"

// Method is the HTTP verb a link is followed with.
type Method string

const (
	MethodGet    Method = "GET"
	MethodPost   Method = "POST"
	MethodPatch  Method = "PATCH"
	MethodDelete Method = "DELETE"
)

// ContentType tags the kind of resource a link targets.
type ContentType string

const (
	ContentTimesheet     ContentType = "application/vnd.timesheets.timesheet+json"
	ContentTimesheetLine ContentType = "application/vnd.timesheets.timesheet-line+json"
	ContentTransitions   ContentType = "application/vnd.timesheets.transitions+json"
	ContentSubmittal     ContentType = "application/vnd.timesheets.submittal+json"
	ContentApproval      ContentType = "application/vnd.timesheets.approval+json"
	ContentRejection     ContentType = "application/vnd.timesheets.rejection+json"
	ContentCancellation  ContentType = "application/vnd.timesheets.cancellation+json"
	ContentReturn        ContentType = "application/vnd.timesheets.return+json"
)

// ActionRelationship names an operation a client may invoke next.
type ActionRelationship string

const (
	RelCancel      ActionRelationship = "cancel"
	RelSubmit      ActionRelationship = "submit"
	RelRecordLine  ActionRelationship = "record-line"
	RelRemove      ActionRelationship = "remove"
	RelReject      ActionRelationship = "reject"
	RelApprove     ActionRelationship = "approve"
	RelReturn      ActionRelationship = "return"
	RelReplaceLine ActionRelationship = "replace-line"
	RelUpdateLine  ActionRelationship = "update-line"
)

// DocumentRelationship names a related readable sub-resource.
type DocumentRelationship string

const (
	DocTransitions  DocumentRelationship = "transitions"
	DocLines        DocumentRelationship = "lines"
	DocSubmittal    DocumentRelationship = "submittal"
	DocRejection    DocumentRelationship = "rejection"
	DocApproval     DocumentRelationship = "approval"
	DocCancellation DocumentRelationship = "cancellation"
)

// ActionLink describes an operation available on a resource.
type ActionLink struct {
	Method       Method             `json:"method"`
	Type         ContentType        `json:"type"`
	Relationship ActionRelationship `json:"rel"`
	Reference    string             `json:"href"`
}

// DocumentLink points at a related document.
type DocumentLink struct {
	Method       Method               `json:"method"`
	Type         ContentType          `json:"type"`
	Relationship DocumentRelationship `json:"rel"`
	Reference    string               `json:"href"`
}

// Href returns the canonical reference of the timecard, optionally with sub-path segments.
func (id TimecardIdentity) Href(segments ...string) string {
	ref := "/timesheets/" + string(id)
	for _, s := range segments {
		ref += "/" + s
	}
	return ref
}

// ActionLinks lists the actions offered for a timecard in the given status.
func ActionLinks(id TimecardIdentity, status Status, lineCount int) []ActionLink {
	links := []ActionLink{}

	switch status {
	case StatusDraft:
		links = append(links, ActionLink{MethodPost, ContentCancellation, RelCancel, id.Href("cancellation")})
		if lineCount > 0 {
			links = append(links, ActionLink{MethodPost, ContentSubmittal, RelSubmit, id.Href("submittal")})
		}
		links = append(links,
			ActionLink{MethodPost, ContentTimesheetLine, RelRecordLine, id.Href("lines")},
			ActionLink{MethodDelete, ContentTimesheet, RelRemove, id.Href()},
		)

	case StatusSubmitted:
		links = append(links,
			ActionLink{MethodPost, ContentCancellation, RelCancel, id.Href("cancellation")},
			ActionLink{MethodPost, ContentRejection, RelReject, id.Href("rejection")},
			ActionLink{MethodPost, ContentApproval, RelApprove, id.Href("approval")},
			ActionLink{MethodPost, ContentReturn, RelReturn, id.Href("return")},
		)

	case StatusApproved:
		// terminal

	case StatusRejected:
		// TODO: decide whether a rejected timecard can be returned to draft; no affordances until then.

	case StatusCancelled:
		links = append(links, ActionLink{MethodDelete, ContentTimesheet, RelRemove, id.Href()})
	}

	return links
}

// DocumentLinks lists the documents related to a timecard in the given status.
func DocumentLinks(id TimecardIdentity, status Status, lineCount int) []DocumentLink {
	links := []DocumentLink{
		{MethodGet, ContentTransitions, DocTransitions, id.Href("transitions")},
	}

	if lineCount > 0 {
		links = append(links, DocumentLink{MethodGet, ContentTimesheetLine, DocLines, id.Href("lines")})
	}

	if rel, ok := statusDocument[status]; ok {
		links = append(links, DocumentLink{MethodGet, ContentTransitions, rel, id.Href(string(rel))})
	}
	return links
}

var statusDocument = map[Status]DocumentRelationship{
	StatusSubmitted: DocSubmittal,
	StatusRejected:  DocRejection,
	StatusApproved:  DocApproval,
	StatusCancelled: DocCancellation,
}

// StatusDocument reports which document relationship records entry into status, if any.
func StatusDocument(status Status) (DocumentRelationship, bool) {
	rel, ok := statusDocument[status]
	return rel, ok
}

// LineActionLinks lists the per-line actions; they do not depend on status.
func LineActionLinks(id TimecardIdentity, lineID fmt.Stringer) []ActionLink {
	ref := id.Href("lines", lineID.String())
	return []ActionLink{
		{MethodPost, ContentTimesheetLine, RelReplaceLine, ref},
		{MethodPatch, ContentTimesheetLine, RelUpdateLine, ref},
	}
}
