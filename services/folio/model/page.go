// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package model

import (
	"encoding/json"
	"fmt"
)

// PageMeta is the pagination envelope every list endpoint returns.
type PageMeta struct {
	Total       int `json:"total"`
	PerPage     int `json:"per_page"`
	CurrentPage int `json:"current_page"`
	LastPage    int `json:"last_page"`
}

// HasMore reports whether a page after CurrentPage exists.
func (m PageMeta) HasMore() bool {
	return m.CurrentPage < m.LastPage
}

// Page is one server page of a list.
type Page struct {
	Data   []Item   `json:"data"`
	Meta   PageMeta `json:"meta"`
	Cursor string   `json:"cursor,omitempty"`
}

// DecodePage parses {data: [...], meta: {...}} using kind for records that
// do not name their own kind.
func DecodePage(kind ItemKind, raw []byte) (Page, error) {
	var env struct {
		Data   []json.RawMessage `json:"data"`
		Meta   PageMeta          `json:"meta"`
		Cursor string            `json:"cursor"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return Page{}, fmt.Errorf("decode page: %w", err)
	}
	page := Page{Meta: env.Meta, Cursor: env.Cursor, Data: make([]Item, 0, len(env.Data))}
	for i, r := range env.Data {
		it, err := DecodeItem(kind, r)
		if err != nil {
			return Page{}, fmt.Errorf("decode page item %d: %w", i, err)
		}
		page.Data = append(page.Data, it)
	}
	return page, nil
}

// PaginatedView is the cached value of a list key: pages in server order.
type PaginatedView struct {
	Pages []Page
}

// Clone copies the page and item slices. Items keep sharing Attrs.
func (v *PaginatedView) Clone() *PaginatedView {
	if v == nil {
		return nil
	}
	out := &PaginatedView{Pages: make([]Page, len(v.Pages))}
	for i, p := range v.Pages {
		np := p
		np.Data = make([]Item, len(p.Data))
		for j, it := range p.Data {
			np.Data[j] = it.Clone()
		}
		out.Pages[i] = np
	}
	return out
}

// Items flattens all pages in order.
func (v *PaginatedView) Items() []Item {
	if v == nil {
		return nil
	}
	var out []Item
	for _, p := range v.Pages {
		out = append(out, p.Data...)
	}
	return out
}

// LastMeta returns the meta of the last loaded page.
func (v *PaginatedView) LastMeta() (PageMeta, bool) {
	if v == nil || len(v.Pages) == 0 {
		return PageMeta{}, false
	}
	return v.Pages[len(v.Pages)-1].Meta, true
}

// Detail is the cached value of a single-entity key such as a review or a
// user profile.
type Detail struct {
	Item Item
}
