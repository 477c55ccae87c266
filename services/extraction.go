package services

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/fenilmodi00/lottery-backend/models"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ElementRef points at one element of a page snapshot. Selector is valid in
// the document the snapshot was taken from.
type ElementRef struct {
	Selector string         `json:"selector"`
	Tag      string         `json:"tag"`
	Type     string         `json:"type,omitempty"`
	Text     string         `json:"text,omitempty"`
	Options  []SelectOption `json:"options,omitempty"`
}

// SelectOption is one <option> of a select element
type SelectOption struct {
	Value string `json:"value"`
	Text  string `json:"text"`
}

// IsSelect reports whether the element is a <select>
func (r ElementRef) IsSelect() bool { return r.Tag == "select" }

// IsCheckbox reports whether the element is a checkbox input
func (r ElementRef) IsCheckbox() bool { return r.Tag == "input" && r.Type == "checkbox" }

// ListingExtractor turns a listing page snapshot into shows
type ListingExtractor func(root *goquery.Selection, def PlatformDefinition, maxNameLength int) []models.Show

// Attribute written onto every element by the live page before a snapshot
const elementIndexAttr = "data-lf-idx"

var (
	whitespaceRegex     = regexp.MustCompile(`\s+`)
	lotteryWordRegex    = regexp.MustCompile(`(?i)\blottery\b`)
	trailingEnterRegex  = regexp.MustCompile(`(?i)[\s\-–|:]*\benter(\s+now)?\s*[!>»›]*$`)
	edgePunctuation     = " \t-–—|:·•»›>"
	navigationDenylist  = []string{"about", "contact", "terms", "privacy", "see all", "view all", "faq", "help", "login", "log in", "sign in", "sign up", "home", "cookie"}
	genericListingHints = []string{
		"[class*='show'] a[href]",
		"[class*='lottery'] a[href]",
		"[class*='card'] a[href]",
		"a[href*='lottery']",
		"a[href*='/show']",
	}
)

// ModalSelectors are the container patterns treated as a modal, dialog or lightbox
var ModalSelectors = []string{
	"dialog[open]",
	"[role='dialog']",
	"[aria-modal='true']",
	".modal.show",
	".modal.in",
	".modal.is-open",
	".lightbox",
	".fancybox-container",
	".mfp-wrap",
	".popup-overlay",
	"iframe[src*='lottery']",
	"iframe[src*='entry']",
}

var stableEntrySelectors = []string{".enter-button", ".btn-enter", ".enter-lottery", "[data-action='enter']"}

// normalizeTextContent collapses whitespace and trims
func normalizeTextContent(text string) string {
	if text == "" {
		return ""
	}
	return strings.TrimSpace(whitespaceRegex.ReplaceAllString(text, " "))
}

// CleanShowName strips listing noise ("lottery", a trailing "Enter") from
// captured anchor text.
func CleanShowName(text string) string {
	name := normalizeTextContent(text)
	name = lotteryWordRegex.ReplaceAllString(name, " ")
	name = normalizeTextContent(name)
	for {
		stripped := trailingEnterRegex.ReplaceAllString(name, "")
		stripped = strings.Trim(stripped, edgePunctuation)
		if stripped == name {
			break
		}
		name = stripped
	}
	return strings.Trim(name, edgePunctuation)
}

// isNavigationText reports whether text looks like site navigation rather than a show
func isNavigationText(name string) bool {
	lower := strings.ToLower(name)
	for _, term := range navigationDenylist {
		if lower == term || strings.HasPrefix(lower, term+" ") {
			return true
		}
	}
	return false
}

// acceptableShowName applies the emptiness, length and denylist filters
func acceptableShowName(name string, maxNameLength int) bool {
	if name == "" || isNavigationText(name) {
		return false
	}
	return maxNameLength <= 0 || len([]rune(name)) <= maxNameLength
}

func hostMatchesPlatform(host string, def PlatformDefinition) bool {
	host = strings.ToLower(host)
	for _, domain := range def.Domains {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}

// resolveListingURL resolves href against base and rejects non-navigational links
func resolveListingURL(base *url.URL, href string) (*url.URL, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return nil, false
	}
	lower := strings.ToLower(href)
	if strings.HasPrefix(lower, "javascript:") || strings.HasPrefix(lower, "mailto:") || strings.HasPrefix(lower, "tel:") {
		return nil, false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return nil, false
	}
	resolved := base.ResolveReference(ref)
	resolved.Fragment = ""
	return resolved, true
}

// anchorLabel finds the best human label for a listing anchor
func anchorLabel(anchor *goquery.Selection) string {
	if text := normalizeTextContent(anchor.Text()); text != "" {
		return text
	}
	for _, attr := range []string{"title", "aria-label"} {
		if value, ok := anchor.Attr(attr); ok && strings.TrimSpace(value) != "" {
			return value
		}
	}
	if alt, ok := anchor.Find("img[alt]").First().Attr("alt"); ok {
		return alt
	}
	container := anchor.Closest("[class*='show'], [class*='card'], [class*='lottery'], li, article")
	return normalizeTextContent(container.Find("h1, h2, h3, h4, .title, [class*='title']").First().Text())
}

// ExtractListings runs the broad multi-selector listing heuristic over a
// snapshot. Results are deduplicated by resolved href and carry the platform's
// default genre.
func ExtractListings(root *goquery.Selection, def PlatformDefinition, maxNameLength int) []models.Show {
	base, err := url.Parse(def.BaseURL)
	if err != nil {
		return nil
	}

	seen := make(map[string]bool)
	var shows []models.Show

	selectors := append(append([]string(nil), def.ListingSelectors...), genericListingHints...)
	for _, selector := range selectors {
		root.Find(selector).Each(func(_ int, anchor *goquery.Selection) {
			if !anchor.Is("a") {
				return
			}
			href, _ := anchor.Attr("href")
			resolved, ok := resolveListingURL(base, href)
			if !ok || !hostMatchesPlatform(resolved.Hostname(), def) {
				return
			}
			key := resolved.String()
			if seen[key] || strings.TrimRight(key, "/") == strings.TrimRight(def.BaseURL, "/") {
				return
			}

			name := CleanShowName(anchorLabel(anchor))
			if !acceptableShowName(name, maxNameLength) {
				return
			}
			seen[key] = true
			shows = append(shows, newListedShow(def, name, key))
		})
	}
	return shows
}

func newListedShow(def PlatformDefinition, name, showURL string) models.Show {
	show := models.Show{
		Name:     name,
		Platform: def.Platform,
		URL:      showURL,
		Active:   true,
	}
	if def.DefaultGenre != "" {
		genre := def.DefaultGenre
		show.Genre = &genre
	}
	return show
}

func isDisabled(sel *goquery.Selection) bool {
	if _, ok := sel.Attr("disabled"); ok {
		return true
	}
	if value, _ := sel.Attr("aria-disabled"); strings.EqualFold(value, "true") {
		return true
	}
	class, _ := sel.Attr("class")
	return strings.Contains(strings.ToLower(class), "disabled")
}

func elementText(sel *goquery.Selection) string {
	if sel.Is("input") {
		value, _ := sel.Attr("value")
		return normalizeTextContent(value)
	}
	text := normalizeTextContent(sel.Text())
	if text == "" {
		label, _ := sel.Attr("aria-label")
		text = normalizeTextContent(label)
	}
	return text
}

// FindPaginationControl locates a "load more", "next" or "see all" control
func FindPaginationControl(root *goquery.Selection) (ElementRef, bool) {
	var found *goquery.Selection
	root.Find("a, button, [role='button']").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if isDisabled(sel) {
			return true
		}
		text := strings.ToLower(elementText(sel))
		switch {
		case text == "next", strings.HasPrefix(text, "next "), text == "next ›", text == "next »":
		case strings.Contains(text, "load more"), strings.Contains(text, "show more"),
			strings.Contains(text, "see all"), strings.Contains(text, "view all"), strings.Contains(text, "more shows"):
		default:
			return true
		}
		found = sel
		return false
	})
	if found == nil {
		return ElementRef{}, false
	}
	return refFor(root, found), true
}

// PaginationHref returns the resolved href of an anchor pagination control
func PaginationHref(ref ElementRef, root *goquery.Selection, base *url.URL) (string, bool) {
	sel := root.Find(ref.Selector).First()
	if sel.Length() == 0 || !sel.Is("a") {
		return "", false
	}
	href, _ := sel.Attr("href")
	resolved, ok := resolveListingURL(base, href)
	if !ok {
		return "", false
	}
	return resolved.String(), true
}

var entryExclusions = []string{"already entered", "check", "closed", "upcoming"}

// FindEntryAffordance locates the control that reveals a lottery entry form.
// Stable class selectors win; otherwise interactive elements whose text
// contains "enter" are scanned, preferring primary or active candidates.
func FindEntryAffordance(root *goquery.Selection, def PlatformDefinition) (ElementRef, bool) {
	for _, selector := range append(append([]string(nil), def.EntryButtonSelectors...), stableEntrySelectors...) {
		var match *goquery.Selection
		root.Find(selector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			if isDisabled(sel) || isFormSubmitControl(sel) {
				return true
			}
			match = sel
			return false
		})
		if match != nil {
			return refFor(root, match), true
		}
	}

	var candidates []*goquery.Selection
	root.Find("a, button, input[type='button'], input[type='submit'], [role='button']").Each(func(_ int, sel *goquery.Selection) {
		if isDisabled(sel) || isFormSubmitControl(sel) {
			return
		}
		text := strings.ToLower(elementText(sel))
		if !strings.Contains(text, "enter") {
			return
		}
		for _, excluded := range entryExclusions {
			if strings.Contains(text, excluded) {
				return
			}
		}
		candidates = append(candidates, sel)
	})
	if len(candidates) == 0 {
		return ElementRef{}, false
	}
	for _, candidate := range candidates {
		if isPrimaryAction(candidate) {
			return refFor(root, candidate), true
		}
	}
	return refFor(root, candidates[0]), true
}

func isPrimaryAction(sel *goquery.Selection) bool {
	class, _ := sel.Attr("class")
	class = strings.ToLower(class)
	for _, hint := range []string{"primary", "active", "cta"} {
		if strings.Contains(class, hint) {
			return true
		}
	}
	return false
}

// isFormSubmitControl reports whether sel submits a form that already has
// inputs; clicking it as an entry affordance would submit an empty form.
func isFormSubmitControl(sel *goquery.Selection) bool {
	form := sel.Closest("form")
	if form.Length() == 0 || form.Find("input:not([type='hidden']), select").Length() == 0 {
		return false
	}
	if sel.Is("input") {
		return true
	}
	typ, hasType := sel.Attr("type")
	return sel.Is("button") && (!hasType || strings.EqualFold(typ, "submit"))
}

// SearchScope is where field discovery runs after modal resolution
type SearchScope struct {
	// Container restricts discovery inside the top document; empty means the whole document
	Container string
	// FrameSelector names a same-origin iframe whose document holds the form
	FrameSelector string
	// CrossOriginFrame is set when the form lives in an unreachable iframe
	CrossOriginFrame bool
}

// ResolveSearchScope inspects a top-document snapshot for modal containers and
// embedded lottery frames.
func ResolveSearchScope(root *goquery.Selection, pageURL string) SearchScope {
	page, err := url.Parse(pageURL)
	if err != nil {
		return SearchScope{}
	}

	for _, selector := range ModalSelectors {
		container := root.Find(selector).First()
		if container.Length() == 0 {
			continue
		}
		frame := container
		if !container.Is("iframe") {
			frame = container.Find("iframe[src]").First()
		}
		if frame.Length() > 0 {
			src, _ := frame.Attr("src")
			ref, err := url.Parse(src)
			if err == nil {
				target := page.ResolveReference(ref)
				if sameOrigin(page, target) {
					return SearchScope{FrameSelector: refFor(root, frame).Selector}
				}
				return SearchScope{CrossOriginFrame: true}
			}
		}
		if container.Find("input, select").Length() > 0 {
			return SearchScope{Container: refFor(root, container).Selector}
		}
	}
	return SearchScope{}
}

func sameOrigin(a, b *url.URL) bool {
	return strings.EqualFold(a.Scheme, b.Scheme) && strings.EqualFold(a.Host, b.Host)
}

// FieldSet holds the logical fields found in a search scope. Nil means absent.
type FieldSet struct {
	FirstName   *ElementRef `json:"first_name,omitempty"`
	LastName    *ElementRef `json:"last_name,omitempty"`
	Email       *ElementRef `json:"email,omitempty"`
	Quantity    *ElementRef `json:"quantity,omitempty"`
	DOBMonth    *ElementRef `json:"dob_month,omitempty"`
	DOBDay      *ElementRef `json:"dob_day,omitempty"`
	DOBYear     *ElementRef `json:"dob_year,omitempty"`
	DOBCombined *ElementRef `json:"dob_combined,omitempty"`
	ZipCode     *ElementRef `json:"zip_code,omitempty"`
	Country     *ElementRef `json:"country,omitempty"`
	Terms       *ElementRef `json:"terms,omitempty"`
	Captcha     *ElementRef `json:"captcha,omitempty"`
	Submit      *ElementRef `json:"submit,omitempty"`
}

// Count returns how many logical input fields were found, excluding submit and CAPTCHA
func (f FieldSet) Count() int {
	count := 0
	for _, ref := range []*ElementRef{f.FirstName, f.LastName, f.Email, f.Quantity, f.DOBMonth, f.DOBDay, f.DOBYear, f.DOBCombined, f.ZipCode, f.Country, f.Terms} {
		if ref != nil {
			count++
		}
	}
	return count
}

// fieldDescriptor is the lowercased identity text of a form control
func fieldDescriptor(root, sel *goquery.Selection) string {
	var parts []string
	for _, attr := range []string{"name", "id", "placeholder", "aria-label", "autocomplete", "data-field"} {
		if value, ok := sel.Attr(attr); ok {
			parts = append(parts, value)
		}
	}
	if id, ok := sel.Attr("id"); ok && id != "" {
		root.Find("label").Each(func(_ int, label *goquery.Selection) {
			if forID, _ := label.Attr("for"); forID == id {
				parts = append(parts, label.Text())
			}
		})
	}
	if wrapping := sel.Closest("label"); wrapping.Length() > 0 {
		parts = append(parts, wrapping.Text())
	}
	return strings.ToLower(normalizeTextContent(strings.Join(parts, " ")))
}

func containsAny(text string, needles ...string) bool {
	for _, needle := range needles {
		if strings.Contains(text, needle) {
			return true
		}
	}
	return false
}

// DiscoverFields locates each logical field independently inside scope
func DiscoverFields(root *goquery.Selection, scope *goquery.Selection) FieldSet {
	if scope == nil || scope.Length() == 0 {
		scope = root
	}
	var fields FieldSet
	assign := func(slot **ElementRef, sel *goquery.Selection) {
		if *slot == nil {
			ref := refFor(root, sel)
			*slot = &ref
		}
	}

	scope.Find("input, select, textarea").Each(func(_ int, sel *goquery.Selection) {
		typ := strings.ToLower(attrOr(sel, "type", "text"))
		if typ == "hidden" || typ == "submit" || typ == "button" || typ == "image" || typ == "reset" || isDisabled(sel) {
			return
		}
		desc := fieldDescriptor(root, sel)
		isSelect := sel.Is("select")
		monthLike := containsAny(desc, "month") || (isSelect && descHasToken(desc, "mm"))
		yearLike := containsAny(desc, "year") || descHasToken(desc, "yyyy")
		dayLike := (containsAny(desc, "day") && !containsAny(desc, "birthday", "today")) || descHasToken(desc, "dd")
		combinedLike := typ == "date" ||
			(descHasToken(desc, "mm") && descHasToken(desc, "dd")) ||
			(containsAny(desc, "birth", "dob", "bday") && !monthLike && !yearLike && !dayLike)

		switch {
		case typ == "checkbox":
			switch {
			case containsAny(desc, "captcha", "recaptcha"):
				assign(&fields.Captcha, sel)
			case containsAny(desc, "terms", "agree", "tos", "rules", "accept", "eligib", "consent"):
				assign(&fields.Terms, sel)
			}
		case typ == "email" || containsAny(desc, "email", "e-mail"):
			assign(&fields.Email, sel)
		case containsAny(desc, "first_name", "firstname", "first name", "fname", "given-name", "given name", "first-name"):
			assign(&fields.FirstName, sel)
		case containsAny(desc, "last_name", "lastname", "last name", "lname", "surname", "family-name", "family name", "last-name"):
			assign(&fields.LastName, sel)
		case containsAny(desc, "qty", "quantity", "ticket", "number_of", "how many"):
			assign(&fields.Quantity, sel)
		case combinedLike && !isSelect:
			assign(&fields.DOBCombined, sel)
		case monthLike:
			assign(&fields.DOBMonth, sel)
		case yearLike:
			assign(&fields.DOBYear, sel)
		case dayLike:
			assign(&fields.DOBDay, sel)
		case containsAny(desc, "zip", "postal", "postcode"):
			assign(&fields.ZipCode, sel)
		case containsAny(desc, "country"):
			assign(&fields.Country, sel)
		}
	})

	root.Find(".g-recaptcha, iframe[src*='recaptcha'], iframe[src*='hcaptcha']").First().Each(func(_ int, sel *goquery.Selection) {
		assign(&fields.Captcha, sel)
	})

	if submit, ok := findSubmitControl(scope); ok {
		ref := refFor(root, submit)
		fields.Submit = &ref
	}
	return fields
}

var submitTexts = map[string]bool{"enter": true, "submit": true, "enter lottery": true}

// findSubmitControl prefers an explicit submit type, then exact button text
func findSubmitControl(scope *goquery.Selection) (*goquery.Selection, bool) {
	var found *goquery.Selection
	scope.Find("button[type='submit'], input[type='submit']").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if isDisabled(sel) {
			return true
		}
		found = sel
		return false
	})
	if found != nil {
		return found, true
	}
	scope.Find("button, a, [role='button'], input[type='button']").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if isDisabled(sel) {
			return true
		}
		if submitTexts[strings.ToLower(elementText(sel))] {
			found = sel
			return false
		}
		return true
	})
	return found, found != nil
}

func descHasToken(desc, token string) bool {
	for _, field := range strings.FieldsFunc(desc, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	}) {
		if field == token {
			return true
		}
	}
	return false
}

func attrOr(sel *goquery.Selection, name, fallback string) string {
	if value, ok := sel.Attr(name); ok && value != "" {
		return value
	}
	return fallback
}

// refFor builds an ElementRef with a selector unique within root's document
func refFor(root, sel *goquery.Selection) ElementRef {
	sel = sel.First()
	ref := ElementRef{
		Selector: uniqueSelector(root, sel),
		Tag:      goquery.NodeName(sel),
		Type:     strings.ToLower(attrOr(sel, "type", "")),
		Text:     elementText(sel),
	}
	if sel.Is("select") {
		sel.Find("option").Each(func(_ int, option *goquery.Selection) {
			text := normalizeTextContent(option.Text())
			value, ok := option.Attr("value")
			if !ok {
				value = text
			}
			ref.Options = append(ref.Options, SelectOption{Value: value, Text: text})
		})
	}
	return ref
}

func uniqueSelector(root, sel *goquery.Selection) string {
	tag := goquery.NodeName(sel)
	if idx, ok := sel.Attr(elementIndexAttr); ok && idx != "" {
		return fmt.Sprintf(`[%s="%s"]`, elementIndexAttr, idx)
	}
	if id, ok := sel.Attr("id"); ok && id != "" {
		selector := fmt.Sprintf(`%s[id="%s"]`, tag, cssAttrEscape(id))
		if documentRoot(root).Find(selector).Length() == 1 {
			return selector
		}
	}
	if name, ok := sel.Attr("name"); ok && name != "" {
		selector := fmt.Sprintf(`%s[name="%s"]`, tag, cssAttrEscape(name))
		if documentRoot(root).Find(selector).Length() == 1 {
			return selector
		}
	}

	var path []string
	for current := sel; current.Length() > 0 && goquery.NodeName(current) != "html"; current = current.Parent() {
		path = append([]string{fmt.Sprintf("%s:nth-child(%d)", goquery.NodeName(current), current.Index()+1)}, path...)
	}
	return "html > " + strings.Join(path, " > ")
}

func documentRoot(sel *goquery.Selection) *goquery.Selection {
	if html := sel.Closest("html"); html.Length() > 0 {
		return html
	}
	if html := sel.Find("html"); html.Length() > 0 {
		return html
	}
	return sel
}

func cssAttrEscape(value string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(value)
}

// MatchOption finds the option value matching any candidate. Matching is
// tolerant: case-insensitive on value or text, and numeric so that "3"
// matches "03".
func MatchOption(options []SelectOption, candidates ...string) (string, bool) {
	for _, candidate := range candidates {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		for _, option := range options {
			if strings.EqualFold(option.Value, candidate) || strings.EqualFold(option.Text, candidate) {
				return option.Value, true
			}
		}
		want, err := strconv.Atoi(candidate)
		if err != nil {
			continue
		}
		for _, option := range options {
			if got, err := strconv.Atoi(strings.TrimSpace(option.Value)); err == nil && got == want {
				return option.Value, true
			}
			if got, err := strconv.Atoi(strings.TrimSpace(option.Text)); err == nil && got == want {
				return option.Value, true
			}
		}
	}
	return "", false
}

// ExtractShowName derives a readable show name for reporting
func ExtractShowName(root *goquery.Selection, pageURL string) string {
	selectors := []string{"h1", ".show-title", ".show-name", "[class*='show-title']", ".lottery-title", "[class*='title'] h2"}
	for _, selector := range selectors {
		if name := CleanShowName(root.Find(selector).First().Text()); acceptableShowName(name, 100) {
			return name
		}
	}
	if content, ok := root.Find("meta[property='og:title']").First().Attr("content"); ok {
		if name := CleanShowName(content); acceptableShowName(name, 100) {
			return name
		}
	}
	return ShowNameFromURL(pageURL)
}

var titleCaser = cases.Title(language.English)

// ShowNameFromURL turns the last meaningful path segment into a title
func ShowNameFromURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	segments := strings.FieldsFunc(parsed.Path, func(r rune) bool { return r == '/' })
	for i := len(segments) - 1; i >= 0; i-- {
		segment := strings.ToLower(segments[i])
		segment = strings.TrimSuffix(segment, ".html")
		words := strings.FieldsFunc(segment, func(r rune) bool { return r == '-' || r == '_' || r == '+' })
		for len(words) > 0 {
			last := words[len(words)-1]
			if last == "ny" || last == "nyc" || last == "broadway" {
				words = words[:len(words)-1]
				continue
			}
			if len(words) >= 2 && words[len(words)-2] == "new" && last == "york" {
				words = words[:len(words)-2]
				continue
			}
			break
		}
		if len(words) == 0 {
			continue
		}
		joined := strings.Join(words, " ")
		if joined == "show" || joined == "shows" || joined == "lottery" {
			continue
		}
		return titleCaser.String(joined)
	}
	return parsed.Hostname()
}
