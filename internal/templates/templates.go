package templates

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/challenge-forums/processor/internal/contracts"
	"gopkg.in/yaml.v3"
)

var ErrTemplateNotFound = errors.New("no forum template for track")

// DefaultFamily is used when a challenge type has no dedicated template
// family (marathon and data-request types select their own).
const DefaultFamily = "default"

// Library maps family name -> track -> forum template.
type Library map[string]Family

type Family map[string]Forum

// Forum declares how one challenge forum is laid out: the group root plus
// its child categories and seeded discussions.
type Forum struct {
	Group      GroupSpec      `yaml:"group"`
	Categories []CategorySpec `yaml:"categories"`
}

type GroupSpec struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Privacy     string `yaml:"privacy"`
}

type CategorySpec struct {
	Name        string           `yaml:"name"`
	URLCode     string           `yaml:"urlcode"`
	Discussions []DiscussionSpec `yaml:"discussions"`
}

type DiscussionSpec struct {
	Title  string `yaml:"title"`
	Body   string `yaml:"body"`
	Format string `yaml:"format"`
	Closed bool   `yaml:"closed"`
	Pinned bool   `yaml:"pinned"`
}

// Load reads the template file. The file is read-only input: adding a track
// or family is a data change, not a code change.
func Load(path string) (Library, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template file: %w", err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (Library, error) {
	var lib Library
	if err := yaml.Unmarshal(raw, &lib); err != nil {
		return nil, fmt.Errorf("parse template file: %w", err)
	}
	if len(lib) == 0 {
		return nil, errors.New("template file declares no families")
	}
	return lib, nil
}

// ForChallenge selects the template for a challenge: the family keyed by the
// challenge type when present, the default family otherwise, then the track
// section within it.
func (l Library) ForChallenge(ch contracts.Challenge) (Forum, error) {
	family, ok := l[ch.Type]
	if !ok {
		family, ok = l[DefaultFamily]
		if !ok {
			return Forum{}, fmt.Errorf("%w: no default family", ErrTemplateNotFound)
		}
	}
	forum, ok := family[ch.Track]
	if !ok {
		return Forum{}, fmt.Errorf("%w %q", ErrTemplateNotFound, ch.Track)
	}
	return forum, nil
}

var placeholderPattern = regexp.MustCompile(`\$\{\s*challenge\.([a-zA-Z]+)\s*\}`)

// Expand substitutes ${challenge.field} placeholders with challenge values.
// Unknown fields are left untouched so template typos show up in the output.
func Expand(pattern string, ch contracts.Challenge) string {
	return placeholderPattern.ReplaceAllStringFunc(pattern, func(match string) string {
		field := placeholderPattern.FindStringSubmatch(match)[1]
		switch strings.ToLower(field) {
		case "id":
			return ch.ID
		case "name":
			return ch.Name
		case "track":
			return ch.Track
		case "type":
			return ch.Type
		case "status":
			return ch.Status
		case "url":
			return ch.URL
		case "link":
			return fmt.Sprintf(`<a href="%s">%s</a>`, ch.URL, ch.Name)
		case "announcement":
			return Announcement(ch)
		default:
			return match
		}
	})
}

// announcementZone keeps deadline display consistent with the challenge
// platform's published schedule times.
var announcementZone = time.FixedZone("UTC-5", -5*60*60)

// Announcement renders the prize and deadline summary posted into a freshly
// provisioned forum.
func Announcement(ch contracts.Challenge) string {
	var b strings.Builder
	for _, set := range ch.PrizeSets {
		if set.Type != contracts.ChallengePrizesSet {
			continue
		}
		amounts := make([]string, 0, len(set.Prizes))
		for _, prize := range set.Prizes {
			amounts = append(amounts, fmt.Sprintf("$%g", prize.Value))
		}
		b.WriteString("Prizes: " + strings.Join(amounts, ", ") + "\r\n")
	}
	for _, phase := range ch.Phases {
		deadline := phase.Deadline.In(announcementZone).Format("2006-01-02 15:04 -07:00")
		b.WriteString(fmt.Sprintf("%s: %s\r\n", phase.Description, deadline))
	}
	return b.String()
}
