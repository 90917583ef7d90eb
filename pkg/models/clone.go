package models

import "slices"

// Clone returns a deep copy of the post including its comments and likes.
func (p Post) Clone() Post {
	p.Media = slices.Clone(p.Media)
	p.Likes = slices.Clone(p.Likes)
	if p.Comments != nil {
		comments := make([]Comment, len(p.Comments))
		for i, c := range p.Comments {
			comments[i] = c.Clone()
		}
		p.Comments = comments
	}
	return p
}

// Clone returns a deep copy of the comment.
func (c Comment) Clone() Comment {
	c.Likes = slices.Clone(c.Likes)
	return c
}

// ClonePosts deep copies a post collection.
func ClonePosts(posts []Post) []Post {
	if posts == nil {
		return nil
	}
	out := make([]Post, len(posts))
	for i, p := range posts {
		out[i] = p.Clone()
	}
	return out
}

// LikedBy returns the index of the like left by userID, or -1.
func LikedBy(likes []Like, userID string) int {
	for i, l := range likes {
		if l.UserID == userID {
			return i
		}
	}
	return -1
}
