package heap

// FreeListCategoryType indexes the size-classified free-list categories.
type FreeListCategoryType int

const (
	TiniestCategory FreeListCategoryType = iota // < 32 bytes
	TinyCategory                                // < 128
	SmallCategory                               // < 1024
	MediumCategory                              // < 4096
	LargeCategory                               // < 16384
	HugeCategory                                // everything else
	numberOfCategories
)

// FirstCategory is the lowest category index; pages allocate category
// objects for the full [FirstCategory, LastCategory] range or none.
const FirstCategory = TiniestCategory

// LastCategory is the highest category index.
const LastCategory = numberOfCategories - 1

// categoryFor classifies a block size.
func categoryFor(size int) FreeListCategoryType {
	switch {
	case size < 32:
		return TiniestCategory
	case size < 128:
		return TinyCategory
	case size < 1024:
		return SmallCategory
	case size < 4096:
		return MediumCategory
	case size < 16384:
		return LargeCategory
	default:
		return HugeCategory
	}
}

// FreeSpace is one free block threaded onto a category list.
type FreeSpace struct {
	address Address
	size    int
	next    *FreeSpace
}

// Address returns the block's start address.
func (fs *FreeSpace) Address() Address { return fs.address }

// Size returns the block's size in bytes.
func (fs *FreeSpace) Size() int { return fs.size }

// FreeListCategory holds the free blocks of one size class on one page.
type FreeListCategory struct {
	categoryType FreeListCategoryType
	top          *FreeSpace
	available    int
	length       int
}

// Initialize resets the category to its type with no blocks.
func (c *FreeListCategory) Initialize(t FreeListCategoryType) {
	c.categoryType = t
	c.top = nil
	c.available = 0
	c.length = 0
}

// Available returns the total free bytes in this category.
func (c *FreeListCategory) Available() int { return c.available }

// Length returns the number of free blocks in this category.
func (c *FreeListCategory) Length() int { return c.length }

// Free prepends a block.
func (c *FreeListCategory) Free(addr Address, size int) {
	c.top = &FreeSpace{address: addr, size: size, next: c.top}
	c.available += size
	c.length++
}

// PickNodeFromList pops the first block of at least minimum size.
func (c *FreeListCategory) PickNodeFromList(minimum int) *FreeSpace {
	var prev *FreeSpace
	for node := c.top; node != nil; node = node.next {
		if node.size >= minimum {
			if prev == nil {
				c.top = node.next
			} else {
				prev.next = node.next
			}
			node.next = nil
			c.available -= node.size
			c.length--
			return node
		}
		prev = node
	}
	return nil
}

// Reset drops all blocks.
func (c *FreeListCategory) Reset() {
	c.top = nil
	c.available = 0
	c.length = 0
}

// FreeList is the per-space front end over the pages' categories. It
// only routes by size class; the blocks themselves live on the pages.
type FreeList struct {
	space *Space
}

// NumberOfCategories returns how many categories every page allocates.
func (fl *FreeList) NumberOfCategories() int { return int(numberOfCategories) }

// LastCategory returns the highest category index.
func (fl *FreeList) LastCategory() FreeListCategoryType { return LastCategory }

// Free returns a block on its page's category for later reuse.
func (fl *FreeList) Free(p *Page, addr Address, size int) {
	if p.categories == nil {
		panic("heap: free into page without categories")
	}
	p.categories[categoryFor(size)].Free(addr, size)
}

// Allocate searches the page's categories for a block of at least size
// bytes, starting at the exact size class and widening.
func (fl *FreeList) Allocate(p *Page, size int) *FreeSpace {
	if p.categories == nil {
		return nil
	}
	for t := categoryFor(size); t <= LastCategory; t++ {
		if node := p.categories[t].PickNodeFromList(size); node != nil {
			return node
		}
	}
	return nil
}
